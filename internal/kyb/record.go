// Package kyb persists the per-session Know Your Business record as a JSON
// document on disk.
package kyb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/omharigupta/datasynth/internal/domain"
	"github.com/omharigupta/datasynth/internal/profile"
)

// Record status values.
const (
	StatusActive   = "active"
	StatusComplete = "complete"
)

// BusinessInfo is the identity captured when the record is created.
type BusinessInfo struct {
	WhatTheySell string `json:"what_they_sell"`
	Source       string `json:"source,omitempty"`
}

// ConversationEntry is one processed turn mirrored into the record.
type ConversationEntry struct {
	Step      int       `json:"step"`
	UserInput string    `json:"user_input"`
	Timestamp time.Time `json:"timestamp"`
}

// Knowledge is the knowledge_extracted block of the record.
type Knowledge struct {
	BusinessUnderstanding []string `json:"business_understanding"`
	Objectives            []string `json:"objectives"`
	Constraints           []string `json:"constraints"`
	KeyInsights           []string `json:"key_insights"`
}

// Record is the persisted KYB document.
type Record struct {
	SessionID           string                 `json:"session_id"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
	BusinessInfo        BusinessInfo           `json:"business_info"`
	ConversationHistory []ConversationEntry    `json:"conversation_history"`
	KnowledgeExtracted  Knowledge              `json:"knowledge_extracted"`
	ScrapedSources      []domain.ScrapedSource `json:"scraped_sources"`
	Status              string                 `json:"status"`
	CompletenessScore   float64                `json:"completeness_score"`
	WorkflowStep        int                    `json:"workflow_step"`
	Summary             string                 `json:"summary,omitempty"`

	// StepResponses holds the step_<n>_response echo fields, keyed by step.
	StepResponses map[int]string `json:"-"`
}

func newRecord(sessionID string, info BusinessInfo, now time.Time) *Record {
	return &Record{
		SessionID:           sessionID,
		CreatedAt:           now,
		UpdatedAt:           now,
		BusinessInfo:        info,
		ConversationHistory: []ConversationEntry{},
		KnowledgeExtracted: Knowledge{
			BusinessUnderstanding: []string{},
			Objectives:            []string{},
			Constraints:           []string{},
			KeyInsights:           []string{},
		},
		ScrapedSources: []domain.ScrapedSource{},
		Status:         StatusActive,
		StepResponses:  map[int]string{},
	}
}

// Snapshot projects the record onto the scorer input.
func (r *Record) Snapshot() profile.Snapshot {
	return profile.Snapshot{
		BusinessIdentity: r.BusinessInfo.WhatTheySell,
		Knowledge: domain.KnowledgeRecord{
			BusinessUnderstanding: r.KnowledgeExtracted.BusinessUnderstanding,
			Objectives:            r.KnowledgeExtracted.Objectives,
			Constraints:           r.KnowledgeExtracted.Constraints,
			KeyInsights:           r.KnowledgeExtracted.KeyInsights,
			ScrapedSources:        r.ScrapedSources,
			Summary:               r.Summary,
		},
		Turns: len(r.ConversationHistory),
	}
}

func (r *Record) rescore() {
	snap := r.Snapshot()
	r.CompletenessScore = profile.Score(snap)
	if profile.Complete(snap) {
		r.Status = StatusComplete
	} else {
		r.Status = StatusActive
	}
}

type recordFields Record

func stepKey(step int) string {
	return "step_" + strconv.Itoa(step) + "_response"
}

func parseStepKey(key string) (int, bool) {
	if !strings.HasPrefix(key, "step_") || !strings.HasSuffix(key, "_response") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(key, "step_"), "_response"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// MarshalJSON flattens StepResponses into top-level step_<n>_response keys.
func (r Record) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(recordFields(r))
	if err != nil {
		return nil, err
	}
	if len(r.StepResponses) == 0 {
		return base, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	steps := make([]int, 0, len(r.StepResponses))
	for step := range r.StepResponses {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	for _, step := range steps {
		raw, err := json.Marshal(r.StepResponses[step])
		if err != nil {
			return nil, err
		}
		fields[stepKey(step)] = raw
	}
	return json.Marshal(fields)
}

// UnmarshalJSON collects step_<n>_response keys back into StepResponses.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields recordFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fields.StepResponses = map[int]string{}
	for key, value := range raw {
		step, ok := parseStepKey(key)
		if !ok {
			continue
		}
		var response string
		if err := json.Unmarshal(value, &response); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		fields.StepResponses[step] = response
	}

	*r = Record(fields)
	return nil
}

// Patch is one incremental update. List fields are appended to the stored
// lists; non-zero scalars overwrite.
type Patch struct {
	Step         int
	Response     string
	WhatTheySell string
	WorkflowStep int
	Summary      string

	BusinessUnderstanding []string
	Objectives            []string
	Constraints           []string
	KeyInsights           []string
	ScrapedSources        []domain.ScrapedSource

	// Entry is appended to conversation_history when set.
	Entry *ConversationEntry
}

func (r *Record) apply(p Patch, now time.Time) {
	k := &r.KnowledgeExtracted
	k.BusinessUnderstanding = append(k.BusinessUnderstanding, p.BusinessUnderstanding...)
	k.Objectives = append(k.Objectives, p.Objectives...)
	k.Constraints = append(k.Constraints, p.Constraints...)
	k.KeyInsights = append(k.KeyInsights, p.KeyInsights...)
	r.ScrapedSources = append(r.ScrapedSources, p.ScrapedSources...)

	if p.WhatTheySell != "" {
		r.BusinessInfo.WhatTheySell = p.WhatTheySell
	}
	if p.WorkflowStep > 0 {
		r.WorkflowStep = p.WorkflowStep
	}
	if p.Summary != "" {
		r.Summary = p.Summary
	}
	if p.Step > 0 {
		if r.StepResponses == nil {
			r.StepResponses = map[int]string{}
		}
		r.StepResponses[p.Step] = p.Response
	}
	if p.Entry != nil {
		r.ConversationHistory = append(r.ConversationHistory, *p.Entry)
	}

	r.UpdatedAt = now
	r.rescore()
}
