package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/omharigupta/datasynth/internal/analysis"
	"github.com/omharigupta/datasynth/internal/domain"
	"github.com/omharigupta/datasynth/internal/kyb"
	"github.com/omharigupta/datasynth/internal/scraper"
)

const (
	previewChars   = 200
	excerptChars   = 1000
	promptChars    = 800
	insightChars   = 100
	promptHeadings = 5
	basicHeadings  = 3
)

// handleURL ingests a website mentioned in the turn. It takes priority over
// the step handler for that turn.
func (e *Engine) handleURL(ctx context.Context, url string, turn Turn, s *domain.Session) string {
	logger := e.logger.With("session_id", s.SessionID, "url", url)

	if e.extractor == nil {
		logger.Warn("URL ignored, no extractor configured")
		return fetchFailureReply(scraper.KindOther)
	}

	page, err := e.extractor.Extract(ctx, url)
	if err != nil {
		kind := scraper.KindOf(err)
		logger.Warn("Website extraction failed", "kind", kind.String(), "error", err)
		return fetchFailureReply(kind)
	}

	title := strings.TrimSpace(page.Title)
	if title == "" {
		title = url
	}
	basic := basicSummary(title, page)
	analysisText := e.analyzePage(ctx, turn, s, url, title, page)
	if analysisText == "" {
		analysisText = "Business analysis: " + basic
	}

	source := domain.ScrapedSource{
		URL:            url,
		Title:          title,
		ContentExcerpt: truncate(page.BodyText, excerptChars),
	}
	insight := fmt.Sprintf("Website insight (%s): %s...", title, truncate(analysisText, insightChars))

	s.Knowledge.ScrapedSources = append(s.Knowledge.ScrapedSources, source)
	s.Knowledge.BusinessUnderstanding = append(s.Knowledge.BusinessUnderstanding, insight)
	s.Knowledge.KeyInsights = append(s.Knowledge.KeyInsights, insight)

	stepBefore := s.Step
	early := stepBefore <= 2
	patch := kyb.Patch{
		BusinessUnderstanding: []string{insight},
		KeyInsights:           []string{insight},
		ScrapedSources:        []domain.ScrapedSource{source},
	}
	if early {
		s.WhatTheySell = title
		s.Step = 3
		patch.WhatTheySell = title
	}
	e.persist(ctx, s, stepBefore, turn.Text, patch)

	body := page.BodyText
	if body == "" {
		body = basic
	}
	e.remember(ctx, s, body, "scraped", url)

	logger.Info("Website ingested",
		"title", title,
		"headings", len(page.Headings),
		"content_chars", len(page.BodyText),
		"early", early)

	if early {
		return fmt.Sprintf("✅ **Website Successfully Scraped & Analyzed!**\n\n**Website:** %s\n\n**Extracted Content:**\n%s\n\n**AI Analysis:**\n%s\n\nLet me create your business profile now...",
			title, basic, analysisText)
	}
	return fmt.Sprintf("✅ **Website Information Added to Profile!**\n\n**%s**\n\n**Analysis:** %s", title, analysisText)
}

// analyzePage asks the oracle for a short business summary. An empty result
// means the caller should use the local summary.
func (e *Engine) analyzePage(ctx context.Context, turn Turn, s *domain.Session, url, title string, page *scraper.Page) string {
	headings := page.Headings
	if len(headings) > promptHeadings {
		headings = headings[:promptHeadings]
	}
	prompt := fmt.Sprintf("Analyze this business website and extract key information:\nTitle: %s\nHeadings: %s\nContent: %s\n\nWhat does this business do? Provide a brief summary.",
		title, strings.Join(headings, ", "), truncate(page.BodyText, promptChars))

	req := analysis.Request{
		Prompt:  prompt,
		History: domain.RecentMessages(turn.History, analysis.HistoryLimit),
		Context: strings.Join(e.recall(ctx, s, title, e.depth), "\n"),
	}
	resp, err := e.analyzer.Analyze(ctx, req)
	if err != nil && resp.Reply == "" {
		e.logger.Warn("Website analysis unavailable, using local summary",
			"session_id", s.SessionID,
			"error", err)
		return ""
	}
	if err != nil {
		e.logger.Debug("Website analysis returned unstructured output",
			"session_id", s.SessionID,
			"error", err)
	}

	// Structured suggestions are kept as retrieval context only; filing
	// knowledge stays positional.
	if u := resp.KnowledgeUpdate; u != nil {
		for _, item := range u.BusinessUnderstanding {
			e.remember(ctx, s, item, "insight", url)
		}
		for _, item := range u.Objectives {
			e.remember(ctx, s, item, "insight", url)
		}
		for _, item := range u.Constraints {
			e.remember(ctx, s, item, "insight", url)
		}
	}
	return strings.TrimSpace(resp.Reply)
}

func basicSummary(title string, page *scraper.Page) string {
	var b strings.Builder
	b.WriteString("Website: " + title)
	if len(page.Headings) > 0 {
		headings := page.Headings
		if len(headings) > basicHeadings {
			headings = headings[:basicHeadings]
		}
		b.WriteString("\nKey sections: " + strings.Join(headings, ", "))
	}
	if page.BodyText != "" {
		b.WriteString("\nContent preview: " + truncate(page.BodyText, previewChars) + "...")
	}
	return b.String()
}

func fetchFailureReply(kind scraper.Kind) string {
	switch kind {
	case scraper.KindSSL:
		return "❌ **SSL Certificate Issue** with that website. This is common with some sites. Please continue with our questions instead!"
	case scraper.KindConnection:
		return "❌ **Cannot connect** to that website. It might be down or restricted. Let's continue with our questions!"
	case scraper.KindTimeout:
		return "❌ **Website took too long** to respond. Let's continue with our questions instead!"
	default:
		return "❌ **Couldn't access that website.** No worries, let's continue with the questions!"
	}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
