package rulestore

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"compliance-core/internal/ruleset"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func newSet(id, from, to string) *ruleset.RuleSet {
	rs := &ruleset.RuleSet{
		ID:            id,
		Regulator:     "SEC",
		ReportType:    "10-K",
		EffectiveFrom: date(from),
		Schema:        ruleset.CanonicalSchema{},
	}
	if to != "" {
		t := date(to)
		rs.EffectiveTo = &t
	}
	return rs
}

func TestActiveLookup(t *testing.T) {
	s := New()
	for _, rs := range []*ruleset.RuleSet{
		newSet("rs-2023", "2023-01-01", "2024-01-01"),
		newSet("rs-2024", "2024-01-01", "2025-01-01"),
		newSet("rs-2025", "2025-01-01", ""),
	} {
		if err := s.Publish(rs); err != nil {
			t.Fatalf("publish %s: %v", rs.ID, err)
		}
	}

	got, err := s.Active("SEC", "10-K", date("2024-06-15"))
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if got.ID != "rs-2024" {
		t.Errorf("Active = %s, want rs-2024", got.ID)
	}

	got, err = s.Active("SEC", "10-K", date("2030-01-01"))
	if err != nil {
		t.Fatalf("Active in open-ended window: %v", err)
	}
	if got.ID != "rs-2025" {
		t.Errorf("Active = %s, want rs-2025", got.ID)
	}

	// Boundary: window end is exclusive, next window start inclusive.
	got, err = s.Active("SEC", "10-K", date("2024-01-01"))
	if err != nil {
		t.Fatalf("Active at boundary: %v", err)
	}
	if got.ID != "rs-2024" {
		t.Errorf("Active at boundary = %s, want rs-2024", got.ID)
	}
}

func TestActiveNotFound(t *testing.T) {
	s := New()
	if err := s.Publish(newSet("rs-2024", "2024-01-01", "2025-01-01")); err != nil {
		t.Fatal(err)
	}

	_, err := s.Active("SEC", "10-K", date("2022-06-01"))
	if !errors.Is(err, ErrRuleSetNotFound) {
		t.Errorf("before any window: got %v, want ErrRuleSetNotFound", err)
	}

	_, err = s.Active("SEC", "10-K", date("2025-06-01"))
	if !errors.Is(err, ErrRuleSetNotFound) {
		t.Errorf("after closed window: got %v, want ErrRuleSetNotFound", err)
	}

	_, err = s.Active("FCA", "MiFIR", date("2024-06-01"))
	if !errors.Is(err, ErrRuleSetNotFound) {
		t.Errorf("unknown pair: got %v, want ErrRuleSetNotFound", err)
	}
}

func TestPublishOverlapRejected(t *testing.T) {
	s := New()
	if err := s.Publish(newSet("rs-a", "2024-01-01", "")); err != nil {
		t.Fatal(err)
	}

	err := s.Publish(newSet("rs-b", "2024-06-01", ""))
	if !errors.Is(err, ErrOverlappingRuleSet) {
		t.Fatalf("overlapping publish: got %v, want ErrOverlappingRuleSet", err)
	}

	// Rejection must be atomic: the store still holds exactly one set.
	if n := len(s.History("SEC", "10-K")); n != 1 {
		t.Errorf("history length after rejected publish = %d, want 1", n)
	}
}

func TestPublishDifferentPairsNeverConflict(t *testing.T) {
	s := New()
	a := newSet("rs-a", "2024-01-01", "")
	b := newSet("rs-b", "2024-01-01", "")
	b.ReportType = "10-Q"
	if err := s.Publish(a); err != nil {
		t.Fatal(err)
	}
	if err := s.Publish(b); err != nil {
		t.Errorf("same window for a different report type must publish: %v", err)
	}
}

// TestPublishSequencesNeverOverlap generates random publish sequences
// and checks the invariant the hard way: after any sequence, no two
// stored windows for the pair intersect, and every rejected publish
// failed with ErrOverlappingRuleSet.
func TestPublishSequencesNeverOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := date("2020-01-01")

	for trial := 0; trial < 200; trial++ {
		s := New()
		for i := 0; i < 12; i++ {
			from := base.AddDate(0, rng.Intn(72), 0)
			rs := &ruleset.RuleSet{
				ID:            "rs",
				Regulator:     "SEC",
				ReportType:    "10-K",
				EffectiveFrom: from,
				Schema:        ruleset.CanonicalSchema{},
			}
			if rng.Intn(4) > 0 { // three in four windows are closed
				to := from.AddDate(0, 1+rng.Intn(24), 0)
				rs.EffectiveTo = &to
			}

			err := s.Publish(rs)
			if err != nil && !errors.Is(err, ErrOverlappingRuleSet) {
				t.Fatalf("trial %d: unexpected publish error: %v", trial, err)
			}
		}

		sets := s.History("SEC", "10-K")
		for i := range sets {
			for j := i + 1; j < len(sets); j++ {
				if sets[i].Overlaps(sets[j]) {
					t.Fatalf("trial %d: stored windows %d and %d overlap", trial, i, j)
				}
			}
		}
	}
}

func TestConcurrentReadsDuringPublish(t *testing.T) {
	s := New()
	if err := s.Publish(newSet("rs-0", "2000-01-01", "2001-01-01")); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// Readers must always see a consistent index: the
				// 2000 window is present from the start and must
				// always resolve.
				if _, err := s.Active("SEC", "10-K", date("2000-06-01")); err != nil {
					t.Errorf("reader lost a committed rule set: %v", err)
					return
				}
			}
		}()
	}

	for year := 2001; year < 2040; year++ {
		from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(1, 0, 0)
		rs := &ruleset.RuleSet{
			ID: "rs", Regulator: "SEC", ReportType: "10-K",
			EffectiveFrom: from, EffectiveTo: &to,
			Schema: ruleset.CanonicalSchema{},
		}
		if err := s.Publish(rs); err != nil {
			t.Fatalf("publish year %d: %v", year, err)
		}
	}
	close(stop)
	wg.Wait()
}

func TestScenarioOpenEndedThenLaterPublish(t *testing.T) {
	// Publishing (SEC, 10-K) effective 2024-01-01 open-ended, then a
	// second effective 2024-06-01, must reject the second.
	s := New()
	if err := s.Publish(newSet("first", "2024-01-01", "")); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	err := s.Publish(newSet("second", "2024-06-01", ""))
	if !errors.Is(err, ErrOverlappingRuleSet) {
		t.Fatalf("second publish: got %v, want ErrOverlappingRuleSet", err)
	}
}
