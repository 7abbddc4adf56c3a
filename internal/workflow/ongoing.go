package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/omharigupta/datasynth/internal/domain"
)

var (
	helpKeywords      = []string{"help", "assistance", "support"}
	marketingKeywords = []string{"marketing", "customers", "sales"}
	fundingKeywords   = []string{"funding", "investment", "money"}
)

// ongoing answers free-form questions after the profile is complete.
func (e *Engine) ongoing(ctx context.Context, turn Turn, s *domain.Session) string {
	text := strings.TrimSpace(turn.Text)
	lower := strings.ToLower(text)

	business := s.WhatTheySell
	if business == "" {
		business = "your business"
	}

	var reply string
	switch {
	case containsAny(lower, helpKeywords):
		reply = fmt.Sprintf("Based on your **%s** profile, I can help you with strategy, marketing, technical challenges, or business development. What specific area interests you?", business)
	case containsAny(lower, marketingKeywords):
		reply = fmt.Sprintf("For marketing your **%s**, consider focusing on your unique value proposition and target audience we identified in your profile.", business)
	case containsAny(lower, fundingKeywords):
		reply = fmt.Sprintf("For funding your **%s**, highlight the specific problems you solve and your competitive advantages.", business)
	default:
		reply = fmt.Sprintf("Regarding your question about **%s** - based on your **%s** profile, I can provide targeted guidance. What specific aspect would you like me to focus on?", text, business)
		for _, hit := range e.recall(ctx, s, text, 2) {
			if hit == text {
				continue
			}
			reply += "\n\nFrom your profile: " + truncate(hit, 200)
			break
		}
	}

	e.remember(ctx, s, text, "conversation", "")
	return reply
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
