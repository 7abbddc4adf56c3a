// Package convlog writes conversation events as newline-delimited JSON.
//
// Events are queued and written by a single background goroutine, one file
// per user session under Dir/<user>/<session>.ndjson, plus an optional
// global file. When the queue is full new events are dropped rather than
// blocking the chat path. At most MaxOpenFiles session files are held open;
// the least recently written one is closed to make room.
package convlog

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls the conversation logger.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	MaxOpenFiles  int
}

const defaultMaxOpenFiles = 64

// ConversationLogEvent is one logged message.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Step       int            `json:"step,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records conversation events.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// Noop discards every event.
type Noop struct{}

// Log implements ConversationLogger.
func (Noop) Log(ConversationLogEvent) {}

// Close implements ConversationLogger.
func (Noop) Close() error { return nil }

type fileLogger struct {
	cfg    Config
	logger *slog.Logger

	queue   chan ConversationLogEvent
	done    chan struct{}
	closing sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64

	files  *handleCache
	global *os.File
}

// handleCache keeps the most recently written session files open. It is only
// touched by the writer goroutine and by Close after that goroutine exits.
type handleCache struct {
	limit   int
	order   *list.List // front = most recently used
	entries map[string]*list.Element
	onEvict func(path string, err error)
}

type openFile struct {
	path string
	f    *os.File
}

func newHandleCache(limit int, onEvictErr func(path string, err error)) *handleCache {
	return &handleCache{
		limit:   limit,
		order:   list.New(),
		entries: make(map[string]*list.Element),
		onEvict: onEvictErr,
	}
}

// get returns the open file for path, opening it and closing the least
// recently used handle when the cache is full.
func (c *handleCache) get(path string) (*os.File, error) {
	if el, ok := c.entries[path]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*openFile).f, nil
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	for c.order.Len() >= c.limit {
		if err := c.evict(c.order.Back()); err != nil && c.onEvict != nil {
			c.onEvict(path, err)
		}
	}
	c.entries[path] = c.order.PushFront(&openFile{path: path, f: f})
	return f, nil
}

func (c *handleCache) evict(el *list.Element) error {
	of := c.order.Remove(el).(*openFile)
	delete(c.entries, of.path)
	if err := of.f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", of.path, err)
	}
	return nil
}

func (c *handleCache) len() int {
	return c.order.Len()
}

// closeAll closes every cached handle.
func (c *handleCache) closeAll() []error {
	var errs []error
	for c.order.Len() > 0 {
		if err := c.evict(c.order.Front()); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// NewConversationLogger returns a Noop logger when logging is disabled.
func NewConversationLogger(cfg Config, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	l, err := newFileLogger(cfg, logger)
	if err != nil {
		return nil, err
	}
	go l.run()
	return l, nil
}

func newFileLogger(cfg Config, logger *slog.Logger) (*fileLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, errors.New("conversation log dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.MaxOpenFiles <= 0 {
		cfg.MaxOpenFiles = defaultMaxOpenFiles
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	files := newHandleCache(cfg.MaxOpenFiles, func(path string, err error) {
		logger.Warn("Failed to close idle conversation log", "path", path, "error", err)
	})
	l := &fileLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  files,
	}

	if cfg.GlobalEnabled && cfg.GlobalPath != "" {
		f, err := openAppend(cfg.GlobalPath)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}
	return l, nil
}

func (l *fileLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("Conversation log queue full, dropping events", "dropped", n)
		}
	}
}

func (l *fileLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		l.write(event)
	}
}

func (l *fileLogger) write(event ConversationLogEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("Failed to encode conversation event", "error", err)
		return
	}
	line = append(line, '\n')

	path := filepath.Join(l.cfg.Dir, pathComponent(event.UserID), pathComponent(event.SessionID)+".ndjson")
	f, err := l.files.get(path)
	if err != nil {
		l.logger.Warn("Failed to open conversation log", "path", path, "error", err)
		return
	}
	if _, err := f.Write(line); err != nil {
		l.logger.Warn("Failed to write conversation log", "path", path, "error", err)
	}
	if l.global != nil {
		if _, err := l.global.Write(line); err != nil {
			l.logger.Warn("Failed to write global conversation log", "error", err)
		}
	}
}

// Close drains queued events and closes all files.
func (l *fileLogger) Close() error {
	var errs []error
	l.closing.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done

		errs = append(errs, l.files.closeAll()...)
		if l.global != nil {
			if err := l.global.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close global log: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func pathComponent(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return "unknown"
	}
	return s
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*(\x07|\x1b\\)`)

// cleanForReadability strips terminal escape sequences and control
// characters and collapses runs of blank lines.
func cleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}
