package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"compliance-core/internal/pipeline"
	"compliance-core/internal/ruleset"
)

// Checksum hashes the canonical field values of every record, sorted
// by record index then canonical field id, so identical inputs always
// hash identically regardless of evaluation order. Regulators compare
// these hashes on re-request.
func Checksum(records []*pipeline.ResolvedRecord, schema ruleset.CanonicalSchema) string {
	h := sha256.New()
	ids := renderFields(schema)
	for i, rec := range records {
		for _, id := range ids {
			val, ok := rec.Fields[id]
			if !ok {
				continue
			}
			fmt.Fprintf(h, "%d\x1f%s=%s\n", i, id, formatValue(val))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
