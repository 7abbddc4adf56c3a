// Package profile scores KYB profile completeness and renders summaries.
//
// Two independent completeness rules exist. IsSufficient is the gate the
// guided workflow uses before it emits the final summary. Score / Complete is
// the five-factor rating stored alongside the persisted record.
package profile

import (
	"strings"

	"github.com/omharigupta/datasynth/internal/domain"
)

// DefaultThreshold is the score at which a persisted record is marked complete.
const DefaultThreshold = 0.8

// minTurns is the number of processed turns counted as a meaningful conversation.
const minTurns = 3

// Missing category labels, in the order they are reported.
const (
	CategoryBusiness    = "Business Details"
	CategoryObjectives  = "Objectives"
	CategoryConstraints = "Challenges"
)

// Snapshot is the input to the five-factor score.
type Snapshot struct {
	BusinessIdentity string
	Knowledge        domain.KnowledgeRecord
	Turns            int
}

// SnapshotOf builds a Snapshot from a live session.
func SnapshotOf(s *domain.Session) Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		BusinessIdentity: s.WhatTheySell,
		Knowledge:        s.Knowledge,
		Turns:            s.Turns,
	}
}

// Score returns the fraction of the five completeness checks satisfied.
func Score(s Snapshot) float64 {
	checks := [...]bool{
		strings.TrimSpace(s.BusinessIdentity) != "",
		len(s.Knowledge.Objectives) >= 1,
		len(s.Knowledge.Constraints) >= 1,
		hasKeyInsight(s.Knowledge),
		s.Turns >= minTurns,
	}
	passed := 0
	for _, ok := range checks {
		if ok {
			passed++
		}
	}
	return float64(passed) / float64(len(checks))
}

// Complete reports whether the score reaches DefaultThreshold.
func Complete(s Snapshot) bool {
	return Score(s) >= DefaultThreshold
}

// hasKeyInsight treats a second business-understanding entry as an insight
// when nothing has been explicitly tagged.
func hasKeyInsight(k domain.KnowledgeRecord) bool {
	if len(k.KeyInsights) > 0 {
		return true
	}
	return len(k.BusinessUnderstanding) >= 2
}

// IsSufficient is the workflow gate: at least two business facts, one
// objective and one constraint.
func IsSufficient(k domain.KnowledgeRecord) bool {
	return len(Missing(k)) == 0
}

// Missing lists the gate categories that are not yet satisfied.
func Missing(k domain.KnowledgeRecord) []string {
	var missing []string
	if len(k.BusinessUnderstanding) < 2 {
		missing = append(missing, CategoryBusiness)
	}
	if len(k.Objectives) < 1 {
		missing = append(missing, CategoryObjectives)
	}
	if len(k.Constraints) < 1 {
		missing = append(missing, CategoryConstraints)
	}
	return missing
}
