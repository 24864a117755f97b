package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("session not found")

// Session is one uploaded DBF file waiting for conversion or expiry.
type Session struct {
	ID      string
	Name    string // original file name as uploaded
	Path    string // location of the stored copy
	Size    int64
	Created time.Time

	// Companions are stored memo and index files (.fpt/.cdx/.dbt) that
	// arrived with the table. They share the session's lifetime.
	Companions []string
}

// companionExts are the dBASE sidecar files accepted alongside a table:
// memo blocks (.fpt/.dbt) and compound indexes (.cdx).
var companionExts = map[string]bool{".fpt": true, ".cdx": true, ".dbt": true}

// IsCompanionExt reports whether ext names a dBASE sidecar file type.
func IsCompanionExt(ext string) bool {
	return companionExts[strings.ToLower(ext)]
}

// sessionStore keeps uploaded files on disk between upload and download.
// Sessions expire after the configured TTL; a background sweep removes
// them together with their files.
type sessionStore struct {
	dir string
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionStore(dir string, ttl time.Duration) (*sessionStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "dbf2csv-uploads")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session dir: %w", err)
	}
	return &sessionStore{
		dir:      dir,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}, nil
}

// Create stores the uploaded content under a fresh session ID.
func (s *sessionStore) Create(src io.Reader, name string) (*Session, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+".dbf")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	size, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	sess := &Session{
		ID:      id,
		Name:    name,
		Path:    path,
		Size:    size,
		Created: time.Now(),
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess, nil
}

// AddCompanion stores a sidecar file next to the session's table, under
// the session ID with the companion's own extension, so the DBF reader
// finds memo blocks where dBASE tools expect them.
func (s *sessionStore) AddCompanion(id string, src io.Reader, name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !IsCompanionExt(ext) {
		return fmt.Errorf("%s is not a dbf companion file", name)
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	path := filepath.Join(s.dir, id+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("store companion: %w", err)
	}
	_, err = io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("store companion: %w", err)
	}

	s.mu.Lock()
	sess.Companions = append(sess.Companions, path)
	s.mu.Unlock()
	return nil
}

// Get looks up a live session.
func (s *sessionStore) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || time.Since(sess.Created) > s.ttl {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes a session, its stored table and any companion files.
func (s *sessionStore) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return removeSessionFiles(sess)
}

// removeSessionFiles deletes the table and its companions, returning the
// first real failure. Already-gone files are not an error.
func removeSessionFiles(sess *Session) error {
	var first error
	for _, p := range append([]string{sess.Path}, sess.Companions...) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) && first == nil {
			first = err
		}
	}
	return first
}

// StartCleanup sweeps expired sessions every interval until ctx ends.
func (s *sessionStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *sessionStore) sweep() {
	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if time.Since(sess.Created) > s.ttl {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		if err := removeSessionFiles(sess); err != nil {
			slog.Warn("removing expired upload", "session", sess.ID, "error", err)
		}
	}
	if len(expired) > 0 {
		slog.Debug("swept expired sessions", "count", len(expired))
	}
}
