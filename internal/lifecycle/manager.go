// Package lifecycle tracks resources that must be released on shutdown.
package lifecycle

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager releases registered resources in reverse order of registration,
// so dependents close before the things they depend on.
type Manager struct {
	mu    sync.Mutex
	stack []namedCloser
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a resource to close on shutdown.
func (m *Manager) Register(name string, closer io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stack = append(m.stack, namedCloser{name: name, closer: closer})
}

// RegisterFunc registers a cleanup function.
func (m *Manager) RegisterFunc(name string, fn func() error) {
	m.Register(name, closerFunc(fn))
}

// Close releases every registered resource, newest first. Every resource
// gets a close attempt even when earlier ones fail; failures are joined
// into the returned error, each wrapped with its resource name. A second
// Close is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	stack := m.stack
	m.stack = nil
	m.mu.Unlock()

	var errs []error
	for i := len(stack) - 1; i >= 0; i-- {
		res := stack[i]
		if err := res.closer.Close(); err != nil {
			log.Error().
				Err(err).
				Str("resource", res.name).
				Msg("lifecycle.close_resource_failed")
			errs = append(errs, fmt.Errorf("close %s: %w", res.name, err))
		}
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
