package analysis

import (
	"errors"
	"strings"
	"testing"

	"github.com/omharigupta/datasynth/internal/domain"
)

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantReply  string
		wantUpdate bool
		wantErr    bool
	}{
		{
			name:       "plain json",
			raw:        `{"response":"Noted.","knowledge_update":{"objectives":["Grow revenue"]}}`,
			wantReply:  "Noted.",
			wantUpdate: true,
		},
		{
			name:       "fenced json",
			raw:        "```json\n{\"response\":\"Fenced\",\"knowledge_update\":{\"constraints\":[\"budget\"]}}\n```",
			wantReply:  "Fenced",
			wantUpdate: true,
		},
		{
			name:       "json inside prose",
			raw:        `Here you go: {"response":"Embedded","knowledge_update":null} hope that helps`,
			wantReply:  "Embedded",
			wantUpdate: false,
		},
		{
			name:      "prose only",
			raw:       "I could not produce JSON today.",
			wantReply: "I could not produce JSON today.",
			wantErr:   true,
		},
		{
			name:      "schema violation",
			raw:       `{"response":42}`,
			wantReply: `{"response":42}`,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, err := ParseResponse(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedOutput) {
					t.Fatalf("ParseResponse() error = %v, want ErrMalformedOutput", err)
				}
			} else if err != nil {
				t.Fatalf("ParseResponse() error = %v", err)
			}
			if resp.Reply != tt.wantReply {
				t.Fatalf("reply = %q, want %q", resp.Reply, tt.wantReply)
			}
			if (resp.KnowledgeUpdate != nil) != tt.wantUpdate {
				t.Fatalf("update = %+v, want present=%v", resp.KnowledgeUpdate, tt.wantUpdate)
			}
		})
	}
}

func TestParseResponseDropsEmptyUpdate(t *testing.T) {
	t.Parallel()

	resp, err := ParseResponse(`{"response":"ok","knowledge_update":{"objectives":["  "],"summary":""}}`)
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if resp.KnowledgeUpdate != nil {
		t.Fatalf("expected nil update, got %+v", resp.KnowledgeUpdate)
	}
}

func TestBuildPromptUsesRecentHistory(t *testing.T) {
	t.Parallel()

	var history []domain.StoredMessage
	for i := 0; i < 8; i++ {
		history = append(history, domain.StoredMessage{Role: domain.RoleUser, Content: "msg" + string(rune('a'+i))})
	}
	prompt := BuildPrompt(Request{Prompt: "What next?", History: history, Context: "Sells tea"})

	if !strings.HasPrefix(prompt, "Context from knowledge base: Sells tea") {
		t.Fatalf("prompt missing context block:\n%s", prompt)
	}
	if strings.Contains(prompt, "msga") || strings.Contains(prompt, "msgc") {
		t.Fatalf("prompt should only carry the last %d messages:\n%s", HistoryLimit, prompt)
	}
	if !strings.Contains(prompt, "user: msgh") || !strings.Contains(prompt, "User: What next?") {
		t.Fatalf("prompt missing recent turn or request:\n%s", prompt)
	}
}
