package testsupport

import (
	"testing"

	"subguard/internal/config"
	"subguard/internal/status"
)

// MustOpenStore opens a status.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *status.Store {
	t.Helper()

	store, err := status.Open(cfg)
	if err != nil {
		t.Fatalf("status.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
