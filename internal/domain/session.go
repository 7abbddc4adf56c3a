// Package domain contains core domain types for the KYB conversation service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow step bounds. StepComplete means the guided workflow has finished
// and the session is in free-form mode.
const (
	StepGreeting = 1
	StepComplete = 9
)

// Session is the mutable state threaded through every turn of one guided
// conversation. It is owned by the workflow engine; callers only pass it back
// on the next turn.
type Session struct {
	Step                 int             `json:"step"`
	SessionID            string          `json:"session_id"`
	UserID               string          `json:"user_id,omitempty"`
	WhatTheySell         string          `json:"what_they_sell,omitempty"`
	CurrentQuestionIndex int             `json:"current_question_index"`
	Knowledge            KnowledgeRecord `json:"knowledge"`
	KYBFile              string          `json:"kyb_file,omitempty"`
	Turns                int             `json:"turns"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// NewSession returns an empty session positioned at the greeting step.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		Step:      StepGreeting,
		SessionID: uuid.NewString(),
		Knowledge: NewKnowledgeRecord(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasBackingRecord reports whether the persisted KYB record exists.
func (s *Session) HasBackingRecord() bool {
	return s.KYBFile != ""
}

// Complete reports whether the guided workflow has finished.
func (s *Session) Complete() bool {
	return s.Step == StepComplete
}

// Touch bumps the update timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy so callers can keep a pre-turn snapshot.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Knowledge = s.Knowledge.Clone()
	return &c
}
