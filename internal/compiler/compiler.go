package compiler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"compliance-core/internal/instrument"
	"compliance-core/internal/pipeline"
)

// CompiledReport is the durable output of a run: the rendered artifact
// plus everything a regulator or auditor needs to verify it. Immutable
// once produced; resubmission is a new CompiledReport with the same
// ReportID and the next revision.
type CompiledReport struct {
	ID         string                    `json:"id"`
	ReportID   string                    `json:"report_id"`
	Revision   int                       `json:"revision"`
	Regulator  string                    `json:"regulator"`
	ReportType string                    `json:"report_type"`
	RuleSetID  string                    `json:"ruleset_id"`
	Encoding   string                    `json:"encoding"`
	Artifact   []byte                    `json:"artifact"`
	Checksum   string                    `json:"checksum"`
	Validation pipeline.ValidationResult `json:"validation"`
	Lineage    []pipeline.Entry          `json:"lineage"`
	CreatedAt  time.Time                 `json:"created_at"`
}

// Compiler holds one renderer per target encoding.
type Compiler struct {
	renderers map[string]Renderer
}

// New registers the supported encodings.
func New() *Compiler {
	c := &Compiler{renderers: make(map[string]Renderer)}
	for _, r := range []Renderer{
		XBRLRenderer{},
		XMLRenderer{},
		CSVRenderer{},
		JSONRenderer{},
		HTMLRenderer{},
	} {
		c.renderers[r.Encoding()] = r
	}
	return c
}

// Renderer returns the renderer for an encoding, if registered.
func (c *Compiler) Renderer(encoding string) (Renderer, bool) {
	r, ok := c.renderers[encoding]
	return r, ok
}

// Encodings lists the registered encodings (render order of the
// registry is irrelevant; callers sort when presenting).
func (c *Compiler) Encodings() []string {
	out := make([]string, 0, len(c.renderers))
	for enc := range c.renderers {
		out = append(out, enc)
	}
	return out
}

// Compile renders a finished run into the target encoding. It refuses
// a blocked run with the complete blocking-failure list, drives the
// run through Compiling to Compiled, and attaches the lineage manifest
// and the content checksum. The artifact bytes and checksum depend
// only on the resolved records, the schema, and the encoding, so
// recompiling identical inputs is byte-identical; CreatedAt lives
// outside the artifact.
func (c *Compiler) Compile(ctx context.Context, run *pipeline.Run, reportID, encoding string) (*CompiledReport, error) {
	inst := instrument.GetInstrumenter(ctx)
	ctx, span := inst.StartSpan(ctx, "pipeline", "compiler", "report.compile")
	defer span.End()
	span.SetEntity("report_run", run.ID)
	span.SetMetadata("encoding", encoding)

	renderer, ok := c.renderers[encoding]
	if !ok {
		span.SetStatus("error")
		return nil, pipeline.UnknownEncodingError(encoding)
	}

	if run.Result.Blocked {
		span.SetStatus("blocked")
		return nil, pipeline.BlockedByValidationError(run.Result.BlockingFailures)
	}

	// Unsupported field types and render failures fail the attempt
	// before the run leaves Aggregating, so the same run can still
	// compile to another encoding. Nothing fallible runs between
	// Compiling and Compiled; a run never strands mid-compile.
	if err := checkSupport(renderer, run.RuleSet.Schema); err != nil {
		span.SetStatus("error")
		return nil, err
	}
	artifact, err := renderer.Render(run.Resolved, run.RuleSet.Schema)
	if err != nil {
		span.SetStatus("error")
		return nil, err
	}

	if err := run.BeginCompile(); err != nil {
		span.SetStatus("error")
		return nil, err
	}
	inst.EmitBusinessEvent(ctx, "run.state."+string(pipeline.StateCompiling), "report_run", run.ID, nil)

	if err := run.MarkCompiled(); err != nil {
		span.SetStatus("error")
		return nil, err
	}

	if reportID == "" {
		reportID = uuid.New().String()
	}
	report := &CompiledReport{
		ID:         uuid.New().String(),
		ReportID:   reportID,
		Regulator:  run.RuleSet.Regulator,
		ReportType: run.RuleSet.ReportType,
		RuleSetID:  run.RuleSet.ID,
		Encoding:   encoding,
		Artifact:   artifact,
		Checksum:   Checksum(run.Resolved, run.RuleSet.Schema),
		Validation: run.Result,
		Lineage:    run.Lineage.Entries(),
		CreatedAt:  time.Now().UTC(),
	}

	span.SetStatus("ok")
	inst.EmitBusinessEvent(ctx, "run.state."+string(pipeline.StateCompiled), "report_run", run.ID, map[string]any{
		"report_id": reportID,
		"encoding":  encoding,
		"checksum":  report.Checksum,
	})
	return report, nil
}
