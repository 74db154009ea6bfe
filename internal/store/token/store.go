package token

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultKey is the storage key every view reads and writes the bearer token under.
const DefaultKey = "access_token"

// Token is an opaque bearer credential issued by the backend on login.
type Token string

// Store owns the single active token of a frontend session.
type Store interface {
	Read() (Token, bool)
	Write(Token)
	Clear()
}

// Medium is the persistent key/value storage a LocalStore writes through to.
// ErrNotFound is returned by Get when the key holds nothing.
type Medium interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// LocalStore persists the token to a Medium on a best-effort basis. Storage
// failures are logged and swallowed; the store then serves the value it holds
// in memory for the lifetime of the process.
type LocalStore struct {
	medium  Medium
	key     string
	timeout time.Duration

	mu     sync.Mutex
	cached Token
	held   bool
}

// Option customizes a LocalStore.
type Option func(*LocalStore)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *LocalStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithTimeout bounds every storage operation.
func WithTimeout(timeout time.Duration) Option {
	return func(s *LocalStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewLocalStore wraps medium. A nil medium yields a memory-only store.
func NewLocalStore(medium Medium, opts ...Option) *LocalStore {
	s := &LocalStore{
		medium:  medium,
		key:     DefaultKey,
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the stored token. A storage failure falls back to the
// in-memory value, which is absent unless this process wrote one.
func (s *LocalStore) Read() (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.medium == nil {
		return s.cached, s.held
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	value, err := s.medium.Get(ctx, s.key)
	switch {
	case err == nil && value != "":
		s.cached, s.held = Token(value), true
		return s.cached, true
	case err == nil || IsNotFound(err):
		s.cached, s.held = "", false
		return "", false
	default:
		log.Warn().Err(err).Str("key", s.key).Msg("token read failed, using in-memory value")
		return s.cached, s.held
	}
}

// Write stores t. Persistence is not guaranteed.
func (s *LocalStore) Write(t Token) {
	if t == "" {
		s.Clear()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached, s.held = t, true
	if s.medium == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.medium.Set(ctx, s.key, string(t)); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("token write failed, keeping it in memory only")
	}
}

// Clear removes the token.
func (s *LocalStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached, s.held = "", false
	if s.medium == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.medium.Delete(ctx, s.key); err != nil && !IsNotFound(err) {
		log.Warn().Err(err).Str("key", s.key).Msg("token clear failed")
	}
}

// Close releases the underlying medium.
func (s *LocalStore) Close() error {
	if s.medium == nil {
		return nil
	}
	return s.medium.Close()
}
