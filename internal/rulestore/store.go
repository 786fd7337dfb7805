// Package rulestore holds published rule sets and answers "which rule
// set is authoritative for this regulator, report type, and instant".
// The store is read-mostly: lookups take a read lock over an immutable
// interval index, and publishing swaps in a rebuilt index only after
// the overlap check commits, so a publish in progress is never visible
// to concurrent lookups.
package rulestore

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"compliance-core/internal/ruleset"
)

var (
	// ErrRuleSetNotFound means no published rule set covers the
	// requested instant. A configuration gap, not a transient fault;
	// callers must not retry.
	ErrRuleSetNotFound = errors.New("no rule set covers the requested instant")

	// ErrOverlappingRuleSet means the published window intersects an
	// existing window for the same (regulator, report type).
	ErrOverlappingRuleSet = errors.New("effective window overlaps an existing rule set")
)

// Store is an in-memory versioned rule set index. Safe for concurrent
// use; reads never block on reads.
type Store struct {
	mu sync.RWMutex
	// byKey maps regulator/reportType to rule sets sorted by
	// EffectiveFrom. Slices are copy-on-write: never mutated after
	// being stored, only replaced.
	byKey map[string][]*ruleset.RuleSet
}

func New() *Store {
	return &Store{byKey: make(map[string][]*ruleset.RuleSet)}
}

// Publish adds a rule set to the index. The overlap check and the
// insert are atomic under the write lock: a rejected publish leaves no
// partial state, and an accepted one becomes visible all at once.
func (s *Store) Publish(rs *ruleset.RuleSet) error {
	if err := rs.Validate(); err != nil {
		return fmt.Errorf("publish rule set: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.byKey[rs.Key()]
	for _, other := range existing {
		if rs.Overlaps(other) {
			return fmt.Errorf("publish rule set %s: window conflicts with %s: %w",
				rs.ID, other.ID, ErrOverlappingRuleSet)
		}
	}

	// Copy-on-write insert keeping EffectiveFrom order.
	next := make([]*ruleset.RuleSet, 0, len(existing)+1)
	next = append(next, existing...)
	next = append(next, rs)
	sort.Slice(next, func(i, j int) bool {
		return next[i].EffectiveFrom.Before(next[j].EffectiveFrom)
	})
	s.byKey[rs.Key()] = next
	return nil
}

// Active returns the rule set covering asOf for the given pair, or
// ErrRuleSetNotFound. O(log n) over the pair's history.
func (s *Store) Active(regulator, reportType string, asOf time.Time) (*ruleset.RuleSet, error) {
	s.mu.RLock()
	sets := s.byKey[regulator+"/"+reportType]
	s.mu.RUnlock()

	// Find the first set with EffectiveFrom > asOf; the candidate is
	// the one before it. Windows never overlap, so at most one set can
	// cover any instant.
	i := sort.Search(len(sets), func(i int) bool {
		return sets[i].EffectiveFrom.After(asOf)
	})
	if i == 0 {
		return nil, fmt.Errorf("%s/%s at %s: %w", regulator, reportType,
			asOf.Format(time.RFC3339), ErrRuleSetNotFound)
	}
	candidate := sets[i-1]
	if !candidate.Covers(asOf) {
		return nil, fmt.Errorf("%s/%s at %s: %w", regulator, reportType,
			asOf.Format(time.RFC3339), ErrRuleSetNotFound)
	}
	return candidate, nil
}

// History returns the pair's rule sets in EffectiveFrom order. The
// returned slice is the live copy-on-write snapshot; callers must not
// modify it.
func (s *Store) History(regulator, reportType string) []*ruleset.RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byKey[regulator+"/"+reportType]
}

// Keys returns every (regulator, report type) pair with at least one
// published rule set.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
