package profile

import (
	"reflect"
	"strings"
	"testing"

	"github.com/omharigupta/datasynth/internal/domain"
)

func TestScoreCountsFiveChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		snap Snapshot
		want float64
	}{
		{name: "empty", snap: Snapshot{Knowledge: domain.NewKnowledgeRecord()}, want: 0},
		{
			name: "identity only",
			snap: Snapshot{BusinessIdentity: "course", Knowledge: domain.NewKnowledgeRecord()},
			want: 0.2,
		},
		{
			name: "second business fact counts as insight",
			snap: Snapshot{
				BusinessIdentity: "course",
				Knowledge: domain.KnowledgeRecord{
					BusinessUnderstanding: []string{"a", "b"},
					Objectives:            []string{"grow"},
				},
			},
			want: 0.6,
		},
		{
			name: "all checks",
			snap: Snapshot{
				BusinessIdentity: "course",
				Knowledge: domain.KnowledgeRecord{
					BusinessUnderstanding: []string{"a"},
					KeyInsights:           []string{"Website insight"},
					Objectives:            []string{"grow"},
					Constraints:           []string{"budget"},
				},
				Turns: 3,
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Score(tt.snap); got != tt.want {
				t.Fatalf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreIsStableAcrossCalls(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		BusinessIdentity: "course",
		Knowledge: domain.KnowledgeRecord{
			BusinessUnderstanding: []string{"a", "b"},
			Objectives:            []string{"grow"},
		},
		Turns: 4,
	}
	first, firstOK := Score(snap), IsSufficient(snap.Knowledge)
	second, secondOK := Score(snap), IsSufficient(snap.Knowledge)
	if first != second || firstOK != secondOK {
		t.Fatalf("scorer not stable: (%v,%v) then (%v,%v)", first, firstOK, second, secondOK)
	}
}

func TestGateIsIndependentOfScore(t *testing.T) {
	t.Parallel()

	// Passes the gate but scores below the 0.8 threshold: no identity, few turns.
	k := domain.KnowledgeRecord{
		BusinessUnderstanding: []string{"a", "b"},
		Objectives:            []string{"grow"},
		Constraints:           []string{"budget"},
	}
	if !IsSufficient(k) {
		t.Fatal("expected gate to pass")
	}
	if Complete(Snapshot{Knowledge: k}) {
		t.Fatal("expected five-factor rule to stay below threshold")
	}

	// Scores 0.8 but fails the gate: one business fact tagged as insight.
	k2 := domain.KnowledgeRecord{
		BusinessUnderstanding: []string{"a"},
		KeyInsights:           []string{"a"},
		Objectives:            []string{"grow"},
		Constraints:           []string{"budget"},
	}
	if IsSufficient(k2) {
		t.Fatal("expected gate to fail with a single business fact")
	}
	if !Complete(Snapshot{BusinessIdentity: "x", Knowledge: k2}) {
		t.Fatal("expected five-factor rule to pass")
	}
}

func TestMissingOrder(t *testing.T) {
	t.Parallel()

	got := Missing(domain.KnowledgeRecord{BusinessUnderstanding: []string{"only"}})
	want := []string{CategoryBusiness, CategoryObjectives, CategoryConstraints}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Missing() = %v, want %v", got, want)
	}
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()

	k := domain.KnowledgeRecord{
		BusinessUnderstanding: []string{"a", "b"},
		Objectives:            []string{"grow"},
		Constraints:           []string{"budget"},
	}
	got := BuildSummary(k)
	want := "Complete business profile with 2 business insights, 1 objectives, and 1 challenges documented."
	if got != want {
		t.Fatalf("BuildSummary() = %q, want %q", got, want)
	}

	k.ScrapedSources = []domain.ScrapedSource{{URL: "https://acme.test"}}
	if got := BuildSummary(k); !strings.HasSuffix(got, "Includes website analysis from 1 source(s).") {
		t.Fatalf("expected source clause, got %q", got)
	}
	if BuildSummary(k) != BuildSummary(k) {
		t.Fatal("BuildSummary must be deterministic")
	}
}

func TestRecapListsSections(t *testing.T) {
	t.Parallel()

	k := domain.KnowledgeRecord{
		BusinessUnderstanding: []string{"Product details: courses"},
		Objectives:            []string{"grow"},
		Constraints:           []string{"budget"},
		Summary:               "done",
	}
	recap := Recap("course", k)
	for _, want := range []string{"**Business:** course", "• Product details: courses", "• grow", "• budget", "**Summary:** done"} {
		if !strings.Contains(recap, want) {
			t.Fatalf("recap missing %q:\n%s", want, recap)
		}
	}
}
