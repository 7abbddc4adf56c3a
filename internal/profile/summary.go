package profile

import (
	"fmt"
	"strings"

	"github.com/omharigupta/datasynth/internal/domain"
)

// BuildSummary renders the deterministic profile synthesis.
func BuildSummary(k domain.KnowledgeRecord) string {
	summary := fmt.Sprintf(
		"Complete business profile with %d business insights, %d objectives, and %d challenges documented.",
		len(k.BusinessUnderstanding), len(k.Objectives), len(k.Constraints),
	)
	if n := len(k.ScrapedSources); n > 0 {
		summary += fmt.Sprintf(" Includes website analysis from %d source(s).", n)
	}
	return summary
}

// Recap renders the full profile shown when the workflow completes.
func Recap(business string, k domain.KnowledgeRecord) string {
	if strings.TrimSpace(business) == "" {
		business = "your business"
	}
	summary := k.Summary
	if summary == "" {
		summary = BuildSummary(k)
	}

	var b strings.Builder
	b.WriteString("🎉 **Your Business Profile is Complete!**\n\n")
	fmt.Fprintf(&b, "**Business:** %s\n\n", business)
	writeSection(&b, "Understanding", k.BusinessUnderstanding)
	writeSection(&b, "Objectives", k.Objectives)
	writeSection(&b, "Challenges", k.Constraints)
	fmt.Fprintf(&b, "**Summary:** %s", summary)
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	fmt.Fprintf(b, "**%s:**\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "• %s\n", item)
	}
	b.WriteString("\n")
}
