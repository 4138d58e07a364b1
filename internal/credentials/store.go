package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/logging"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/statestore"
)

// Workflow names a flow whose active session id is persisted.
type Workflow string

const (
	WorkflowCreation     Workflow = "creation"
	WorkflowOrchestrator Workflow = "orchestrator"
)

const (
	tokenKey         = "auth_token"
	sessionKeySuffix = "_session_id"
)

// SessionKey returns the stable storage key for a workflow's active session.
func SessionKey(w Workflow) string {
	return string(w) + sessionKeySuffix
}

// LogoutListener is called after the credential has been cleared.
type LogoutListener func(reason string)

// Store persists credentials and session ids in a statestore.KV.
type Store struct {
	kv       statestore.KV
	override string
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]LogoutListener
}

// Option configures a Store.
type Option func(*Store)

// WithOverride pins the credential (AURA_TOKEN or api.token). Logout still
// clears the persisted copy but the override keeps being served.
func WithOverride(token string) Option {
	return func(s *Store) { s.override = strings.TrimSpace(token) }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for logout diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New wraps kv.
func New(kv statestore.KV, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		now:       time.Now,
		listeners: make(map[int]LogoutListener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "credentials")
	return s
}

// Token returns the bearer credential, or "" when none is stored or the
// stored token is already expired.
func (s *Store) Token(ctx context.Context) (string, error) {
	token, err := s.RawToken(ctx)
	if err != nil || token == "" {
		return "", err
	}
	if claims, inspectErr := Inspect(token); inspectErr == nil && claims.Expired(s.now()) {
		s.logger.Debug("stored credential expired",
			logging.String("expires_at", claims.ExpiresAt.UTC().Format(time.RFC3339)),
		)
		return "", nil
	}
	return token, nil
}

// RawToken returns the credential without the expiry check.
func (s *Store) RawToken(ctx context.Context) (string, error) {
	if s.override != "" {
		return s.override, nil
	}
	token, ok, err := s.kv.Get(ctx, tokenKey)
	if err != nil {
		return "", fmt.Errorf("load credential: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// SetToken stores a new credential.
func (s *Store) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credential must not be empty")
	}
	if err := s.kv.Set(ctx, tokenKey, token); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Logout clears the credential and notifies every listener.
func (s *Store) Logout(ctx context.Context, reason string) error {
	err := s.kv.Delete(ctx, tokenKey)
	if err != nil {
		err = fmt.Errorf("clear credential: %w", err)
	}
	s.logger.Info("credential cleared",
		logging.String(logging.FieldEventType, "logout"),
		logging.String("reason", reason),
	)

	s.mu.Lock()
	listeners := make([]LogoutListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(reason)
	}
	return err
}

// OnLogout registers fn and returns a function that removes it.
func (s *Store) OnLogout(fn LogoutListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Session returns the persisted active session id for w.
func (s *Store) Session(ctx context.Context, w Workflow) (string, bool, error) {
	id, ok, err := s.kv.Get(ctx, SessionKey(w))
	if err != nil {
		return "", false, fmt.Errorf("load %s session: %w", w, err)
	}
	return id, ok && id != "", nil
}

// SetSession persists id as the active session for w.
func (s *Store) SetSession(ctx context.Context, w Workflow, id string) error {
	if err := s.kv.Set(ctx, SessionKey(w), id); err != nil {
		return fmt.Errorf("save %s session: %w", w, err)
	}
	return nil
}

// ClearSession forgets the active session for w.
func (s *Store) ClearSession(ctx context.Context, w Workflow) error {
	if err := s.kv.Delete(ctx, SessionKey(w)); err != nil {
		return fmt.Errorf("clear %s session: %w", w, err)
	}
	return nil
}
