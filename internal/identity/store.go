// Package identity holds the client identity string applied to proxied
// requests and the strategies used to persist it.
//
// A single Store is shared by the control surfaces (HTTP, MCP) and the
// interception path. Every read and write runs inside one critical section,
// including the durable I/O of the selected Backing, so no caller ever
// observes a value another caller has not finished persisting.
package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/http/httpguts"
)

// DefaultUserAgent is served when nothing has been configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

var (
	// ErrInvalidInput is returned by Set for values that cannot be used as an
	// identity header.
	ErrInvalidInput = errors.New("invalid identity value")

	// ErrDurableWrite is returned by Set when the backing could not persist
	// the value. Nothing is applied in that case.
	ErrDurableWrite = errors.New("persisting identity value")
)

// Backing stores the current value somewhere. Load reports false when no
// usable record exists; implementations log corruption instead of returning it.
type Backing interface {
	Load() (string, bool)
	Store(value string) error
}

// Refresher is implemented by backings whose record can be modified by
// another process. Changed reports whether the record moved since it was
// last loaded or stored through this backing.
type Refresher interface {
	Changed() bool
}

// Store is the concurrency-safe holder of the current identity string.
type Store struct {
	mu      sync.Mutex
	backing Backing
	def     string
	value   string
	warm    bool
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDefault overrides DefaultUserAgent. Blank values are ignored.
func WithDefault(ua string) Option {
	return func(s *Store) {
		if strings.TrimSpace(ua) != "" {
			s.def = ua
		}
	}
}

// WithLogger sets the logger used for degraded-mode warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store over b. A nil backing keeps the value in memory only.
func New(b Backing, opts ...Option) *Store {
	if b == nil {
		b = NewMemoryBacking()
	}
	s := &Store{
		backing: b,
		def:     DefaultUserAgent,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Default returns the value seeded when no record exists.
func (s *Store) Default() string {
	return s.def
}

// Validate reports whether ua is acceptable as an identity value.
func Validate(ua string) error {
	if strings.TrimSpace(ua) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidInput)
	}
	if !httpguts.ValidHeaderFieldValue(ua) {
		return fmt.Errorf("%w: not a valid header value", ErrInvalidInput)
	}
	return nil
}

// Set replaces the current value. The value is written through to the
// backing before it becomes visible; on a backing failure neither the
// in-memory value nor the durable record changes.
func (s *Store) Set(ua string) error {
	if err := Validate(ua); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backing.Store(ua); err != nil {
		return fmt.Errorf("%w: %v", ErrDurableWrite, err)
	}
	s.value = ua
	s.warm = true
	return nil
}

// Get returns the current value. On a cold store it loads the backing
// record, seeding and persisting the default when none exists. Get never
// fails: a backing that cannot persist the seed leaves the default in memory.
func (s *Store) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.warm && !s.stale() {
		return s.value
	}

	if v, ok := s.backing.Load(); ok {
		s.value = v
		s.warm = true
		return v
	}

	s.value = s.def
	s.warm = true
	if err := s.backing.Store(s.def); err != nil {
		s.logger.Warn("could not persist default identity, serving from memory", "error", err)
	}
	return s.value
}

func (s *Store) stale() bool {
	r, ok := s.backing.(Refresher)
	return ok && r.Changed()
}
