// Package staging manages request-scoped on-disk artifacts. Each inbound
// event gets its own uniquely named directory so concurrent requests never
// collide, and the whole directory is removed when the request completes.
package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Scope is one request's staging directory. Close is safe to call more than
// once and from deferred cleanup paths.
type Scope struct {
	dir string

	mu     sync.Mutex
	closed bool
}

// NewScope creates a fresh staging directory keyed by a request-unique id.
func NewScope() (*Scope, error) {
	dir, err := os.MkdirTemp("", "wabot-"+uuid.New().String()+"-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Scope{dir: dir}, nil
}

// Dir returns the scope's directory path.
func (s *Scope) Dir() string { return s.dir }

// WriteFile stages data under the scope and returns the absolute path.
// The name must be a bare filename; path separators are rejected.
func (s *Scope) WriteFile(name string, data []byte) (string, error) {
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("staging name must be a bare filename: %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("staging scope already closed")
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("stage file: %w", err)
	}
	return path, nil
}

// Close removes the staging directory and everything in it.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.dir)
}
