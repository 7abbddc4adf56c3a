package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")
	objectRegex    = regexp.MustCompile(`(?s)\{.*\}`)
)

type wireResponse struct {
	Response        string           `json:"response"`
	KnowledgeUpdate *KnowledgeUpdate `json:"knowledge_update"`
}

// ParseResponse turns raw model text into a Response. It tolerates code
// fences and prose around the JSON object. When no valid object is found it
// returns the trimmed text as Reply together with ErrMalformedOutput.
func ParseResponse(raw string) (Response, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Response{}, fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	var lastErr error
	for _, candidate := range candidates(text) {
		resp, err := decodeStructured([]byte(candidate))
		if err == nil {
			if resp.Reply == "" {
				resp.Reply = text
			}
			return resp, nil
		}
		lastErr = err
	}
	return Response{Reply: text}, fmt.Errorf("%w: %v", ErrMalformedOutput, lastErr)
}

// candidates lists the substrings worth decoding, most specific first.
func candidates(text string) []string {
	out := []string{text}
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if m := objectRegex.FindString(text); m != "" && m != text {
		out = append(out, m)
	}
	return out
}

// decodeStructured validates data against the response schema and decodes it.
func decodeStructured(data []byte) (Response, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Response{}, fmt.Errorf("decode json: %w", err)
	}
	if err := validate(doc); err != nil {
		return Response{}, err
	}

	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return Response{
		Reply:           strings.TrimSpace(wire.Response),
		KnowledgeUpdate: normalize(wire.KnowledgeUpdate),
	}, nil
}

// normalize drops blank entries and returns nil for an empty update.
func normalize(u *KnowledgeUpdate) *KnowledgeUpdate {
	if u == nil {
		return nil
	}
	out := &KnowledgeUpdate{
		BusinessUnderstanding: compact(u.BusinessUnderstanding),
		Objectives:            compact(u.Objectives),
		Constraints:           compact(u.Constraints),
		Summary:               strings.TrimSpace(u.Summary),
	}
	if len(out.BusinessUnderstanding) == 0 && len(out.Objectives) == 0 &&
		len(out.Constraints) == 0 && out.Summary == "" {
		return nil
	}
	return out
}

func compact(items []string) []string {
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
