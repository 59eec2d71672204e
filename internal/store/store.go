// Package store persists session records as one JSON file per session
// under a private directory. Writes go to a temporary file first and
// are renamed into place, so a crash never leaves a half-written
// record behind.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mvelimir/skeep/internal/session"
)

const recordExt = ".json"

// ErrNoop can be returned from an Update closure to signal that the
// record must not be rewritten. Update then succeeds without touching
// disk.
var ErrNoop = errors.New("store: no update")

// Store is the single source of truth consulted and updated by every
// other component. Mutations on the same session id are serialized by
// a per-id mutex; operations on different ids proceed concurrently.
type Store struct {
	dir string
	log *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// DefaultDir returns the session directory under the user cache dir.
func DefaultDir() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(cache, "skeep", "sessions"), nil
}

// Open creates dir with private permissions if needed and returns a
// store over it. An empty dir selects DefaultDir.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(dir) == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &session.StoreError{Op: "mkdir", Path: dir, Err: err}
	}
	return &Store{
		dir:   dir,
		log:   logger,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

func (s *Store) idLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) path(id string) (string, error) {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid session id %q: %w", id, session.ErrNotFound)
	}
	return filepath.Join(s.dir, id+recordExt), nil
}

// Put atomically persists rec, replacing any previous version.
func (s *Store) Put(rec *session.Record) error {
	l := s.idLock(rec.SessionID)
	l.Lock()
	defer l.Unlock()
	return s.write(rec)
}

// write performs the create-temporary + rename dance. Callers hold the
// per-id lock.
func (s *Store) write(rec *session.Record) error {
	path, err := s.path(rec.SessionID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return &session.StoreError{Op: "marshal", Path: path, Err: err}
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return &session.StoreError{Op: "create temp", Path: s.dir, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &session.StoreError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &session.StoreError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &session.StoreError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Get returns the record for id, session.ErrNotFound if absent, or
// session.ErrCorruptRecord if the file cannot be parsed.
func (s *Store) Get(id string) (*session.Record, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	return s.read(path, id)
}

func (s *Store) read(path, id string) (*session.Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", id, session.ErrNotFound)
		}
		return nil, &session.StoreError{Op: "read", Path: path, Err: err}
	}
	var rec session.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", session.ErrCorruptRecord, path, err)
	}
	if rec.SessionID == "" {
		return nil, fmt.Errorf("%w: %s: missing session_id", session.ErrCorruptRecord, path)
	}
	return &rec, nil
}

// Update applies fn to the current record for id and persists the
// result, holding the per-id lock across the read-modify-write. fn may
// return ErrNoop to keep the record as is. The returned record is the
// durably committed state.
func (s *Store) Update(id string, fn func(*session.Record) error) (*session.Record, error) {
	l := s.idLock(id)
	l.Lock()
	defer l.Unlock()

	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	rec, err := s.read(path, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		if errors.Is(err, ErrNoop) {
			return rec, nil
		}
		return nil, err
	}
	if err := s.write(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the record for id. Deleting an absent id is not an
// error.
func (s *Store) Delete(id string) error {
	l := s.idLock(id)
	l.Lock()
	defer l.Unlock()

	path, err := s.path(id)
	if err != nil {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &session.StoreError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// List returns a snapshot of all readable records. Corrupt or
// unreadable entries are logged and skipped so one bad file never
// fails the whole listing. List takes no locks, so it never blocks
// writers; a record changing state mid-listing is tolerated.
func (s *Store) List() ([]*session.Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &session.StoreError{Op: "list", Path: s.dir, Err: err}
	}
	records := make([]*session.Record, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, recordExt)
		rec, err := s.read(filepath.Join(s.dir, name), id)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				continue // deleted mid-listing
			}
			s.log.Warn("skipping unreadable session record",
				zap.String("file", name),
				zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
