package kyb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"
)

// ErrNotFound is returned when a handle does not point at a record.
var ErrNotFound = errors.New("kyb record not found")

// ErrExists is returned by Create when the session already has a record.
var ErrExists = errors.New("kyb record already exists")

// Store is the create / update / read contract the workflow engine uses.
type Store interface {
	Create(ctx context.Context, sessionID string, info BusinessInfo) (string, error)
	Update(ctx context.Context, handle string, patch Patch) error
	Read(ctx context.Context, handle string) (*Record, error)
}

// FileStore keeps one JSON file per session under a directory. Each handle
// is the file path. Updates are read-modify-write under a per-handle lock and
// land through an atomic rename.
type FileStore struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*handleLock
}

// handleLock is dropped from the map once no caller holds or waits for it.
type handleLock struct {
	mu   sync.Mutex
	refs int
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create kyb directory: %w", err)
	}
	return &FileStore{
		dir:   dir,
		now:   func() time.Time { return time.Now().UTC() },
		locks: make(map[string]*handleLock),
	}, nil
}

// Dir returns the directory holding the records.
func (s *FileStore) Dir() string {
	return s.dir
}

// PathFor returns the handle a session's record is stored under.
func (s *FileStore) PathFor(sessionID string) string {
	return filepath.Join(s.dir, "kyb_"+sanitize(sessionID)+".json")
}

// Create writes a fresh record and returns its handle.
func (s *FileStore) Create(ctx context.Context, sessionID string, info BusinessInfo) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(sessionID) == "" {
		return "", fmt.Errorf("create kyb record: empty session id")
	}

	handle := s.PathFor(sessionID)
	defer s.lock(handle)()

	if _, err := os.Stat(handle); err == nil {
		return handle, ErrExists
	}

	rec := newRecord(sessionID, info, s.now())
	rec.rescore()
	if err := writeRecord(handle, rec); err != nil {
		return "", fmt.Errorf("create kyb record: %w", err)
	}
	return handle, nil
}

// Update applies patch to the stored record.
func (s *FileStore) Update(ctx context.Context, handle string, patch Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	defer s.lock(handle)()

	rec, err := readRecord(handle)
	if err != nil {
		return fmt.Errorf("update kyb record: %w", err)
	}
	rec.apply(patch, s.now())
	if err := writeRecord(handle, rec); err != nil {
		return fmt.Errorf("update kyb record: %w", err)
	}
	return nil
}

// Read loads the record behind handle.
func (s *FileStore) Read(ctx context.Context, handle string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer s.lock(handle)()

	return readRecord(handle)
}

// ReadFile loads a record from an arbitrary path without a store.
func ReadFile(path string) (*Record, error) {
	return readRecord(path)
}

// lock acquires the per-handle lock and returns its release function.
func (s *FileStore) lock(handle string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[handle]
	if !ok {
		l = &handleLock{}
		s.locks[handle] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, handle)
		}
		s.mu.Unlock()
	}
}

func (s *FileStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &rec, nil
}

func writeRecord(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := atomicwriter.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// sanitize keeps session IDs from escaping the store directory.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
