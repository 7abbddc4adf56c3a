package domain

// ScrapedSource records the provenance of one URL ingestion.
type ScrapedSource struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	ContentExcerpt string `json:"content_excerpt"`
}

// KnowledgeRecord accumulates the structured facts gathered for a session.
// Every list is append-only; Summary is written once when the profile passes
// the completeness gate.
type KnowledgeRecord struct {
	BusinessUnderstanding []string        `json:"business_understanding"`
	Objectives            []string        `json:"objectives"`
	Constraints           []string        `json:"constraints"`
	KeyInsights           []string        `json:"key_insights"`
	ScrapedSources        []ScrapedSource `json:"scraped_sources"`
	Summary               string          `json:"summary"`
}

// NewKnowledgeRecord returns a record with non-nil lists so it serializes as
// empty arrays rather than null.
func NewKnowledgeRecord() KnowledgeRecord {
	return KnowledgeRecord{
		BusinessUnderstanding: []string{},
		Objectives:            []string{},
		Constraints:           []string{},
		KeyInsights:           []string{},
		ScrapedSources:        []ScrapedSource{},
	}
}

// Clone returns a deep copy of the record.
func (k KnowledgeRecord) Clone() KnowledgeRecord {
	return KnowledgeRecord{
		BusinessUnderstanding: append([]string{}, k.BusinessUnderstanding...),
		Objectives:            append([]string{}, k.Objectives...),
		Constraints:           append([]string{}, k.Constraints...),
		KeyInsights:           append([]string{}, k.KeyInsights...),
		ScrapedSources:        append([]ScrapedSource{}, k.ScrapedSources...),
		Summary:               k.Summary,
	}
}

// Snapshot returns the read-only projection shown next to the chat.
func (k KnowledgeRecord) Snapshot() KnowledgeSnapshot {
	c := k.Clone()
	return KnowledgeSnapshot{
		BusinessUnderstanding: c.BusinessUnderstanding,
		Objectives:            c.Objectives,
		Constraints:           c.Constraints,
		Summary:               c.Summary,
	}
}

// KnowledgeSnapshot is the display projection of a KnowledgeRecord.
type KnowledgeSnapshot struct {
	BusinessUnderstanding []string `json:"business_understanding"`
	Objectives            []string `json:"objectives"`
	Constraints           []string `json:"constraints"`
	Summary               string   `json:"summary"`
}
