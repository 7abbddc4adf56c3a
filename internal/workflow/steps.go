package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/omharigupta/datasynth/internal/domain"
	"github.com/omharigupta/datasynth/internal/kyb"
	"github.com/omharigupta/datasynth/internal/profile"
)

const (
	greeting          = "Hi! 👋 What do you sell? (You can also paste a URL to scrape your business website)"
	savedReply        = "📝 Information saved!"
	recordedReply     = "💾 Response recorded!"
	checkingReply     = "Let me check if I have enough information..."
	transitionReply   = "Let me check if your business profile is complete..."
	completedStep     = "KYB Complete - Summary Generated"
	assistancePrompt  = "Now I can provide targeted assistance! What would you like to focus on?"
	missingDetailsAsk = "📋 Could you provide more details about:\n%s\nThis will complete your business profile."
)

// missingPrompts phrases the follow-up for each gate category once the
// question list is exhausted.
var missingPrompts = map[string]string{
	profile.CategoryBusiness:    "- What makes your business unique, and who it serves?",
	profile.CategoryObjectives:  "- Your main business goals for the next 6 months?",
	profile.CategoryConstraints: "- The biggest challenge you're facing right now?",
}

func (e *Engine) dispatch(ctx context.Context, turn Turn, s *domain.Session) string {
	text := strings.TrimSpace(turn.Text)

	switch s.Step {
	case 1:
		s.Step = 2
		return greeting

	case 2:
		s.WhatTheySell = text
		s.Step = 3
		return fmt.Sprintf("Great! You make **%s**. Let me create your business profile...", text)

	case 3:
		return e.createProfile(ctx, text, s)

	case 4:
		entry := "Product details: " + text
		s.Knowledge.BusinessUnderstanding = append(s.Knowledge.BusinessUnderstanding, entry)
		s.Step = 5
		e.persist(ctx, s, 4, text, kyb.Patch{
			Step:                  4,
			Response:              text,
			BusinessUnderstanding: []string{entry},
		})
		return savedReply

	case 5:
		if s.CurrentQuestionIndex < len(e.questions) {
			s.Step = 6
			return "Next question: " + e.questions[s.CurrentQuestionIndex]
		}
		s.Step = 8
		return checkingReply

	case 6:
		s.Step = 7
		e.recordAnswer(ctx, text, s)
		return recordedReply

	case 7:
		s.Step = 8
		return transitionReply

	case 8:
		return e.checkCompleteness(ctx, text, s)

	default:
		if s.Step != domain.StepComplete {
			e.logger.Error("Unknown workflow step, using free-form mode",
				"session_id", s.SessionID,
				"step", s.Step)
			if s.Knowledge.Summary != "" {
				s.Step = domain.StepComplete
			}
		}
		return e.ongoing(ctx, turn, s)
	}
}

func (e *Engine) createProfile(ctx context.Context, text string, s *domain.Session) string {
	s.Step = 4
	e.persist(ctx, s, 3, text, kyb.Patch{Step: 3, Response: text})

	subject := "your business"
	if s.WhatTheySell != "" {
		subject = "**" + s.WhatTheySell + "**"
	}
	return fmt.Sprintf("✅ Business profile created! Now tell me more about %s - what does it include and how does it work?", subject)
}

// recordAnswer files the answer to the current question. Once every question
// has been answered, extra answers go to the first category the gate still
// reports missing and the index stays at the end of the list.
func (e *Engine) recordAnswer(ctx context.Context, text string, s *domain.Session) {
	var (
		cat    category
		prefix string
	)
	idx := s.CurrentQuestionIndex
	if idx < len(e.questions) {
		cat, prefix = classify(idx)
		s.CurrentQuestionIndex++
	} else {
		cat, prefix = categoryBusiness, "Additional details: "
		if missing := profile.Missing(s.Knowledge); len(missing) > 0 {
			cat = categoryFor(missing[0])
			if cat != categoryBusiness {
				prefix = ""
			}
		}
	}

	entry := prefix + text
	patch := kyb.Patch{Step: 6, Response: text}
	switch cat {
	case categoryObjectives:
		s.Knowledge.Objectives = append(s.Knowledge.Objectives, entry)
		patch.Objectives = []string{entry}
	case categoryConstraints:
		s.Knowledge.Constraints = append(s.Knowledge.Constraints, entry)
		patch.Constraints = []string{entry}
	default:
		s.Knowledge.BusinessUnderstanding = append(s.Knowledge.BusinessUnderstanding, entry)
		patch.BusinessUnderstanding = []string{entry}
	}

	e.persist(ctx, s, 6, text, patch)
}

func (e *Engine) checkCompleteness(ctx context.Context, text string, s *domain.Session) string {
	if profile.IsSufficient(s.Knowledge) {
		if s.Knowledge.Summary == "" {
			s.Knowledge.Summary = profile.BuildSummary(s.Knowledge)
		}
		s.Step = domain.StepComplete
		e.persist(ctx, s, 8, text, kyb.Patch{
			Step:     8,
			Response: completedStep,
			Summary:  s.Knowledge.Summary,
		})
		e.logger.Info("KYB profile complete",
			"session_id", s.SessionID,
			"business_understanding", len(s.Knowledge.BusinessUnderstanding),
			"objectives", len(s.Knowledge.Objectives),
			"constraints", len(s.Knowledge.Constraints))
		return profile.Recap(s.WhatTheySell, s.Knowledge) + "\n\n" + assistancePrompt
	}

	missing := profile.Missing(s.Knowledge)
	s.Step = 6

	if s.CurrentQuestionIndex < len(e.questions) {
		return fmt.Sprintf("📋 I need more information to complete your business profile.\n\nMissing: %s\n\n**Next Question:** %s",
			strings.Join(missing, ", "), e.questions[s.CurrentQuestionIndex])
	}

	var asks strings.Builder
	for _, label := range missing {
		asks.WriteString(missingPrompts[label])
		asks.WriteString("\n")
	}
	return fmt.Sprintf(missingDetailsAsk, asks.String())
}
