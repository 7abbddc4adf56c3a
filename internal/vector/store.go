// Package vector keeps short text snippets gathered during conversations and
// retrieves the ones most relevant to a query.
//
// Search uses Go-side cosine similarity over embeddings stored as JSON in
// SQLite. Rows stored without an embedding are ranked by keyword overlap.
package vector

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Metadata keys written by the workflow engine.
const (
	MetaSessionID = "session_id"
	MetaSource    = "source"
	MetaType      = "type"
)

// Store is the similarity store contract. Filter entries must all match a
// snippet's metadata for it to be considered.
type Store interface {
	Store(ctx context.Context, text string, metadata map[string]string) error
	Query(ctx context.Context, text string, topK int, filter map[string]string) ([]string, error)
}

// SQLiteStore implements Store on a shared SQLite handle.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
	logger   *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the snippet table on db if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB, embedder Embedder, logger *slog.Logger) (*SQLiteStore, error) {
	if embedder == nil {
		embedder = NoopEmbedder{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS vector_snippets (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		embedding TEXT,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vector_snippets_session ON vector_snippets(session_id, created_at);
	`)
	if err != nil {
		return nil, fmt.Errorf("vector: create schema: %w", err)
	}
	return &SQLiteStore{db: db, embedder: embedder, logger: logger}, nil
}

// Store embeds text (when an embedder is available) and persists it.
func (s *SQLiteStore) Store(ctx context.Context, text string, metadata map[string]string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var embeddingJSON []byte
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("Snippet embedding failed, storing without vector", "error", err)
	} else if vec != nil {
		if embeddingJSON, err = json.Marshal(vec); err != nil {
			return fmt.Errorf("vector: marshal embedding: %w", err)
		}
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("vector: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vector_snippets (id, session_id, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), metadata[MetaSessionID], text, nullable(embeddingJSON), string(metadataJSON), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("vector: insert snippet: %w", err)
	}

	s.logger.Debug("Stored snippet",
		"session_id", metadata[MetaSessionID],
		"type", metadata[MetaType],
		"chars", len(text),
		"has_embedding", embeddingJSON != nil)
	return nil
}

// Query returns up to topK snippet texts ranked by similarity to text.
func (s *SQLiteStore) Query(ctx context.Context, text string, topK int, filter map[string]string) ([]string, error) {
	if topK <= 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}

	query := `SELECT content, embedding, metadata FROM vector_snippets`
	var args []any
	if sid, ok := filter[MetaSessionID]; ok {
		query += ` WHERE session_id = ?`
		args = append(args, sid)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector: query snippets: %w", err)
	}
	defer rows.Close()

	var snippets []snippet
	for rows.Next() {
		var (
			sn            snippet
			embeddingJSON sql.NullString
			metadataJSON  sql.NullString
		)
		if err := rows.Scan(&sn.content, &embeddingJSON, &metadataJSON); err != nil {
			return nil, fmt.Errorf("vector: scan snippet: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &sn.metadata); err != nil {
				s.logger.Warn("Skipping snippet with malformed metadata", "error", err)
				continue
			}
		}
		if !matches(sn.metadata, filter) {
			continue
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &sn.embedding); err != nil {
				s.logger.Warn("Skipping snippet with malformed embedding", "error", err)
				continue
			}
		}
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector: iterate snippets: %w", err)
	}
	if len(snippets) == 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("Query embedding failed, ranking by keywords", "error", err)
		queryVec = nil
	}
	// Cosine and keyword scores are not comparable, so one measure ranks
	// every candidate: cosine only when all of them carry an embedding.
	useCosine := len(queryVec) > 0
	for _, sn := range snippets {
		if len(sn.embedding) != len(queryVec) {
			useCosine = false
			break
		}
	}
	queryTerms := terms(text)
	for i := range snippets {
		sn := &snippets[i]
		if useCosine {
			sn.score = cosineSimilarity(queryVec, sn.embedding)
		} else {
			sn.score = overlap(queryTerms, terms(sn.content))
		}
	}
	// Stable, so ties keep recency order.
	slices.SortStableFunc(snippets, func(a, b snippet) int {
		return cmp.Compare(b.score, a.score)
	})

	var out []string
	for _, sn := range snippets {
		if len(out) == topK {
			break
		}
		if sn.score <= 0 {
			continue
		}
		out = append(out, sn.content)
	}
	return out, nil
}

type snippet struct {
	content   string
	embedding []float32
	metadata  map[string]string
	score     float64
}

func matches(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// cosineSimilarity returns 0 for empty, mismatched or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// terms lower-cases text and keeps words of three or more letters.
func terms(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) >= 3 {
			out[w] = struct{}{}
		}
	}
	return out
}

// overlap is the fraction of query terms present in the document.
func overlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for w := range query {
		if _, ok := doc[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
