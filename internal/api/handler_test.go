//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		want   map[string]string
	}{
		{
			name:   "payload",
			write:  func(w http.ResponseWriter) { JSON(w, http.StatusOK, map[string]string{"reply": "hi"}) },
			status: http.StatusOK,
			want:   map[string]string{"reply": "hi"},
		},
		{
			name:   "error",
			write:  func(w http.ResponseWriter) { Error(w, http.StatusTooManyRequests, errRateLimited.Error()) },
			status: http.StatusTooManyRequests,
			want:   map[string]string{"error": "rate limit exceeded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			resp := w.Result()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

			var got map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}
