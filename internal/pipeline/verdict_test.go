package pipeline

import (
	"math/rand"
	"reflect"
	"testing"

	"compliance-core/internal/ruleset"
)

func TestAggregateCounts(t *testing.T) {
	res := Aggregate([]Verdict{
		{Record: 0, Field: "a", RuleVersion: "r1@1", Outcome: OutcomePass, Severity: ruleset.SeverityBlocking},
		{Record: 0, Field: "b", RuleVersion: "r2@1", Outcome: OutcomeFail, Severity: ruleset.SeverityBlocking, Message: "bad"},
		{Record: 1, Field: "c", RuleVersion: "r3@1", Outcome: OutcomeWarn, Severity: ruleset.SeverityWarning, Message: "meh"},
		{Record: 1, Field: "d", RuleVersion: "r4@1", Outcome: OutcomeFail, Severity: ruleset.SeverityInfo, Message: "note"},
	})

	if res.PassCount != 1 || res.FailCount != 2 || res.WarnCount != 1 {
		t.Fatalf("counts = %d/%d/%d", res.PassCount, res.FailCount, res.WarnCount)
	}
	if !res.Blocked {
		t.Fatal("blocking fail must block the result")
	}
	// Only blocking-severity failures block; the info-severity fail is
	// counted but does not appear in the blocking list.
	if len(res.BlockingFailures) != 1 || res.BlockingFailures[0].Field != "b" {
		t.Fatalf("blocking failures = %+v", res.BlockingFailures)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Field != "c" {
		t.Fatalf("warnings = %+v", res.Warnings)
	}
}

func TestAggregateNoBlockingFailures(t *testing.T) {
	res := Aggregate([]Verdict{
		{Record: 0, Field: "a", RuleVersion: "r1@1", Outcome: OutcomePass, Severity: ruleset.SeverityBlocking},
		{Record: 0, Field: "b", RuleVersion: "r2@1", Outcome: OutcomeWarn, Severity: ruleset.SeverityWarning},
	})
	if res.Blocked {
		t.Fatal("warnings alone must not block")
	}
}

// Records evaluate in parallel, so the verdict slice arrives in
// nondeterministic order. Aggregate must yield an identical result for
// every permutation.
func TestAggregateOrderIndependent(t *testing.T) {
	base := []Verdict{
		{Record: 0, Field: "a", RuleVersion: "r1@1", Outcome: OutcomeFail, Severity: ruleset.SeverityBlocking, Message: "m1"},
		{Record: 0, Field: "b", RuleVersion: "r2@1", Outcome: OutcomeWarn, Severity: ruleset.SeverityWarning, Message: "m2"},
		{Record: 1, Field: "a", RuleVersion: "r1@1", Outcome: OutcomeFail, Severity: ruleset.SeverityBlocking, Message: "m3"},
		{Record: 1, Field: "b", RuleVersion: "r3@1", Outcome: OutcomePass, Severity: ruleset.SeverityBlocking},
		{Record: 2, Field: "c", RuleVersion: "r4@1", Outcome: OutcomeWarn, Severity: ruleset.SeverityInfo, Message: "m4"},
	}
	want := Aggregate(base)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 100; trial++ {
		shuffled := make([]Verdict, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got := Aggregate(shuffled)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("trial %d: aggregate differs:\n got %+v\nwant %+v", trial, got, want)
		}
	}
}
