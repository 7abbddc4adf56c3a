package workflow

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// minURLLength rejects fragments like "http://a".
const minURLLength = 10

var deniedHosts = []string{"localhost", "127.0.0.1", "example.com"}

// DetectURL returns the first usable URL in text. Only the first candidate is
// considered; if it fails the filter the turn is treated as URL-free.
func DetectURL(text string) (string, bool) {
	candidate := urlPattern.FindString(text)
	if candidate == "" {
		return "", false
	}
	candidate = strings.TrimRight(candidate, ".,;:!?)]}>'\"")
	if !validURL(candidate) {
		return "", false
	}
	return candidate, true
}

func validURL(u string) bool {
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	if len(u) < minURLLength {
		return false
	}
	for _, host := range deniedHosts {
		if strings.Contains(lower, host) {
			return false
		}
	}
	return true
}
