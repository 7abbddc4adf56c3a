package convlog

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConversationLoggerWritesPerSessionNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(Config{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(ConversationLogEvent{
		UserID:     "anon_1",
		SessionID:  "sess-1",
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: "We sell candles",
		Step:       2,
	})

	path := filepath.Join(dir, "anon_1", "sess-1.ndjson")
	line := waitForLogLine(t, path)
	var got ConversationLogEvent
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "We sell candles" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content == "" {
		t.Fatal("expected cleaned content to be populated")
	}
	if got.Timestamp == "" {
		t.Fatal("expected timestamp to be populated")
	}
	if got.Step != 2 {
		t.Fatalf("unexpected step: %d", got.Step)
	}
}

func TestCloseFlushesQueueAndGlobalFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	global := filepath.Join(dir, "all.ndjson")
	logger, err := NewConversationLogger(Config{
		Enabled:       true,
		Dir:           dir,
		GlobalEnabled: true,
		GlobalPath:    global,
		QueueSize:     64,
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		logger.Log(ConversationLogEvent{UserID: "u", SessionID: "s", ContentRaw: "hello"})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Logging after close is a no-op.
	logger.Log(ConversationLogEvent{UserID: "u", SessionID: "s", ContentRaw: "late"})

	data, err := os.ReadFile(global)
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	if n := strings.Count(string(data), "\n"); n != 10 {
		t.Fatalf("expected 10 lines in global log, got %d", n)
	}
}

func TestUnsafeIDsStayInsideDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(Config{Enabled: true, Dir: dir}, discardLogger())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	logger.Log(ConversationLogEvent{UserID: "../../etc", SessionID: "a/b", ContentRaw: "x"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "_.._etc", "a_b.ndjson")); err != nil {
		t.Fatalf("expected sanitized path inside dir: %v", err)
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	if _, ok := logger.(Noop); !ok {
		t.Fatalf("expected Noop logger, got %T", logger)
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain\r\n\n\n\nnext"
	clean := cleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if !strings.Contains(clean, "error plain") {
		t.Fatalf("expected readable text to remain: %q", clean)
	}
	if strings.Contains(clean, "\n\n\n") {
		t.Fatalf("expected blank lines to collapse: %q", clean)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}

func TestOpenSessionFilesAreBounded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := newFileLogger(Config{Enabled: true, Dir: dir, MaxOpenFiles: 4}, discardLogger())
	if err != nil {
		t.Fatalf("newFileLogger failed: %v", err)
	}
	defer func() {
		if errs := l.files.closeAll(); len(errs) > 0 {
			t.Errorf("closeAll: %v", errs)
		}
	}()

	for i := 0; i < 50; i++ {
		l.write(ConversationLogEvent{UserID: "anon_1", SessionID: fmt.Sprintf("sess-%d", i), ContentRaw: "hello"})
		if n := l.files.len(); n > 4 {
			t.Fatalf("after %d sessions %d files are open, want at most 4", i+1, n)
		}
	}

	// sess-0 was evicted long ago; writing again reopens it in append mode.
	l.write(ConversationLogEvent{UserID: "anon_1", SessionID: "sess-0", ContentRaw: "again"})
	data, err := os.ReadFile(filepath.Join(dir, "anon_1", "sess-0.ndjson"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 2 {
		t.Fatalf("sess-0 has %d lines, want 2", got)
	}
	if n := l.files.len(); n != 4 {
		t.Fatalf("open files = %d, want 4", n)
	}
}
