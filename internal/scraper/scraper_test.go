package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const samplePage = `<!doctype html>
<html><head>
<title> Acme Analytics </title>
<meta name="description" content="Dashboards for small shops">
<script>var tracking = "ignore me";</script>
</head><body>
<nav><h2>Menu heading</h2></nav>
<h1>Analytics for everyone</h1>
<h2>Features</h2>
<p>Short.</p>
<p>Acme turns raw sales exports into weekly dashboards that owners actually read.</p>
<footer><p>Copyright Acme Analytics, all rights reserved, forever and ever and ever.</p></footer>
</body></html>`

func TestParseExtractsBusinessContent(t *testing.T) {
	t.Parallel()

	page, err := Parse(strings.NewReader(samplePage))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if page.Title != "Acme Analytics" {
		t.Fatalf("title = %q", page.Title)
	}
	if page.MetaDescription != "Dashboards for small shops" {
		t.Fatalf("meta description = %q", page.MetaDescription)
	}
	wantHeadings := []string{"Analytics for everyone", "Features"}
	if strings.Join(page.Headings, "|") != strings.Join(wantHeadings, "|") {
		t.Fatalf("headings = %v, want %v", page.Headings, wantHeadings)
	}
	if !strings.Contains(page.BodyText, "weekly dashboards") {
		t.Fatalf("body text missing paragraph: %q", page.BodyText)
	}
	if strings.Contains(page.BodyText, "Short.") || strings.Contains(page.BodyText, "Copyright") {
		t.Fatalf("body text should skip short paragraphs and footers: %q", page.BodyText)
	}
}

func TestParseCapsHeadings(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < 15; i++ {
		sb.WriteString("<h3>heading</h3>")
	}
	sb.WriteString("</body></html>")

	page, err := Parse(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(page.Headings) != maxHeadings {
		t.Fatalf("headings = %d, want %d", len(page.Headings), maxHeadings)
	}
}

func TestExtractFromServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	s := New(Options{Timeout: 2 * time.Second, UserAgent: "test-agent"})
	page, err := s.Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if page.URL != srv.URL || page.Title != "Acme Analytics" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestExtractDecodesDeclaredCharset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		_, _ = w.Write([]byte("<html><head><title>Caf\xe9 Lumi\xe8re</title></head><body><p>Cr\xe8me br\xfbl\xe9e daily</p></body></html>"))
	}))
	defer srv.Close()

	page, err := New(Options{Timeout: 2 * time.Second}).Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if page.Title != "Café Lumière" {
		t.Fatalf("Title = %q, want %q", page.Title, "Café Lumière")
	}
}

func TestExtractClassifiesFailures(t *testing.T) {
	t.Parallel()

	notFound := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(notFound.Close)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	tlsSrv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	t.Cleanup(tlsSrv.Close)

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name    string
		url     string
		timeout time.Duration
		want    Kind
	}{
		{name: "http error", url: notFound.URL, timeout: time.Second, want: KindOther},
		{name: "timeout", url: slow.URL, timeout: 100 * time.Millisecond, want: KindTimeout},
		{name: "untrusted certificate", url: tlsSrv.URL, timeout: time.Second, want: KindSSL},
		{name: "refused", url: closedURL, timeout: time.Second, want: KindConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(Options{Timeout: tt.timeout})
			_, err := s.Extract(context.Background(), tt.url)
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Extract() error = %v, want *FetchError", err)
			}
			if fe.Kind != tt.want {
				t.Fatalf("kind = %s, want %s (err: %v)", fe.Kind, tt.want, err)
			}
		})
	}
}
