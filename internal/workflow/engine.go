// Package workflow drives the guided KYB conversation. Each call to
// Engine.Process consumes one user turn, advances the session through the
// step machine and returns the reply to show.
//
// Every path yields a reply. Extractor, oracle and vector store failures are
// recoverable and never move the session backwards; persistence failures are
// logged and the conversation continues on the in-memory state.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/omharigupta/datasynth/internal/analysis"
	"github.com/omharigupta/datasynth/internal/domain"
	"github.com/omharigupta/datasynth/internal/kyb"
	"github.com/omharigupta/datasynth/internal/scraper"
	"github.com/omharigupta/datasynth/internal/vector"
)

// Turn is one user message plus the prior chat history.
type Turn struct {
	Text    string
	History []domain.StoredMessage
}

// Result is the outcome of one processed turn.
type Result struct {
	Reply     string
	Session   *domain.Session
	Knowledge domain.KnowledgeSnapshot
}

// Engine is safe for concurrent use across sessions. Turns of the same
// session must be serialized by the caller.
type Engine struct {
	store     kyb.Store
	extractor scraper.Extractor
	analyzer  analysis.Analyzer
	vectors   vector.Store
	questions []string
	depth     int
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithVectorStore enables snippet storage and retrieval.
func WithVectorStore(v vector.Store) Option {
	return func(e *Engine) { e.vectors = v }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithQuestions replaces the follow-up question list. Answers are still
// filed by position, so the list should keep the default ordering of topics.
func WithQuestions(q []string) Option {
	return func(e *Engine) {
		if len(q) > 0 {
			e.questions = append([]string{}, q...)
		}
	}
}

// WithContextDepth sets how many stored snippets are passed to the analyzer
// as context for a scraped page.
func WithContextDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.depth = n
		}
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine. A nil analyzer disables AI analysis of scraped
// pages; the local summary is used instead.
func New(store kyb.Store, extractor scraper.Extractor, analyzer analysis.Analyzer, opts ...Option) *Engine {
	if analyzer == nil {
		analyzer = analysis.Unavailable{}
	}
	e := &Engine{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		questions: DefaultQuestions,
		depth:     3,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process consumes one turn. The passed session is not modified; the updated
// copy is returned in Result.Session. A nil or uninitialized session starts a
// new conversation.
func (e *Engine) Process(ctx context.Context, turn Turn, session *domain.Session) Result {
	s := session.Clone()
	if s == nil || s.SessionID == "" {
		fresh := domain.NewSession()
		if s != nil && s.UserID != "" {
			fresh.UserID = s.UserID
		}
		s = fresh
	}
	s.Turns++
	before := s.Step

	var reply string
	if url, ok := DetectURL(turn.Text); ok {
		reply = e.handleURL(ctx, url, turn, s)
	} else {
		reply = e.dispatch(ctx, turn, s)
	}

	if _, known := successors[before]; known && s.Step != before && !allowedTransition(before, s.Step) {
		e.logger.Error("Unexpected workflow transition",
			"session_id", s.SessionID,
			"from", before,
			"to", s.Step)
	}
	s.Touch()

	e.logger.Debug("Processed turn",
		"session_id", s.SessionID,
		"step_before", before,
		"step_after", s.Step,
		"question_index", s.CurrentQuestionIndex,
		"turns", s.Turns)

	return Result{
		Reply:     reply,
		Session:   s,
		Knowledge: s.Knowledge.Snapshot(),
	}
}

// successors lists the steps reachable from each step in one turn. URL
// ingestion adds the 1/2 → 3 jump.
var successors = map[int][]int{
	1: {2, 3},
	2: {3},
	3: {4},
	4: {5},
	5: {6, 8},
	6: {7},
	7: {8},
	8: {9, 6},
	9: {9},
}

func allowedTransition(from, to int) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// persist mirrors a mutation into the KYB record, creating the record first
// when the session has none. A lazily created record receives the full
// in-memory knowledge instead of the delta so it does not lag behind.
// Writes ignore cancellation of ctx: once the session has been mutated the
// record must receive the same change, or later deltas would skip it.
func (e *Engine) persist(ctx context.Context, s *domain.Session, step int, text string, patch kyb.Patch) {
	if e.store == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if !s.HasBackingRecord() {
		handle, err := e.store.Create(ctx, s.SessionID, kyb.BusinessInfo{WhatTheySell: s.WhatTheySell})
		if err != nil && !errors.Is(err, kyb.ErrExists) {
			e.logger.Warn("Failed to create KYB record",
				"session_id", s.SessionID,
				"step", step,
				"error", err)
			return
		}
		s.KYBFile = handle
		e.logger.Info("Created KYB record", "session_id", s.SessionID, "handle", handle)

		k := s.Knowledge
		patch.BusinessUnderstanding = append([]string{}, k.BusinessUnderstanding...)
		patch.Objectives = append([]string{}, k.Objectives...)
		patch.Constraints = append([]string{}, k.Constraints...)
		patch.KeyInsights = append([]string{}, k.KeyInsights...)
		patch.ScrapedSources = append([]domain.ScrapedSource{}, k.ScrapedSources...)
		if patch.Summary == "" {
			patch.Summary = k.Summary
		}
	}

	if patch.WorkflowStep == 0 {
		patch.WorkflowStep = s.Step
	}
	patch.Entry = &kyb.ConversationEntry{
		Step:      step,
		UserInput: text,
		Timestamp: e.now(),
	}

	if err := e.store.Update(ctx, s.KYBFile, patch); err != nil {
		e.logger.Warn("Failed to update KYB record",
			"session_id", s.SessionID,
			"handle", s.KYBFile,
			"step", step,
			"error", err)
	}
}

// remember stores a snippet in the vector store. Failures are logged only.
func (e *Engine) remember(ctx context.Context, s *domain.Session, text, kind, source string) {
	if e.vectors == nil {
		return
	}
	meta := map[string]string{
		vector.MetaSessionID: s.SessionID,
		vector.MetaType:      kind,
	}
	if source != "" {
		meta[vector.MetaSource] = source
	}
	if err := e.vectors.Store(ctx, text, meta); err != nil {
		e.logger.Warn("Failed to store snippet",
			"session_id", s.SessionID,
			"type", kind,
			"error", err)
	}
}

// recall returns the best matching snippets for this session.
func (e *Engine) recall(ctx context.Context, s *domain.Session, text string, topK int) []string {
	if e.vectors == nil {
		return nil
	}
	hits, err := e.vectors.Query(ctx, text, topK, map[string]string{vector.MetaSessionID: s.SessionID})
	if err != nil {
		e.logger.Warn("Snippet query failed", "session_id", s.SessionID, "error", err)
		return nil
	}
	return hits
}
