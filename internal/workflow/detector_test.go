package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"plain text", "we sell candles", "", false},
		{"https url", "Check this out: https://example-business.test/about", "https://example-business.test/about", true},
		{"http url mid sentence", "our site http://candles.shop is new", "http://candles.shop", true},
		{"trailing punctuation", "see https://candles.shop/pricing.", "https://candles.shop/pricing", true},
		{"localhost denied", "try http://localhost:8080/app", "", false},
		{"loopback denied", "try http://127.0.0.1:9000", "", false},
		{"example.com denied", "like https://www.example.com/page", "", false},
		{"too short", "http://ab", "", false},
		{"uppercase scheme ignored", "HTTPS://CANDLES.SHOP", "", false},
		{"only first candidate", "http://localhost/x and https://candles.shop", "", false},
		{"no scheme", "www.candles.shop", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := DetectURL(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
