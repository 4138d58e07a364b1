package testsupport

import (
	"testing"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/config"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/credentials"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/statestore"
)

// MustOpenStore opens the state database for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *statestore.Store {
	t.Helper()

	store, err := statestore.Open(cfg.StatePath())
	if err != nil {
		t.Fatalf("statestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewCredentials returns a credential store over in-memory state.
func NewCredentials(t testing.TB, opts ...credentials.Option) *credentials.Store {
	t.Helper()
	return credentials.New(statestore.NewMemory(), opts...)
}
