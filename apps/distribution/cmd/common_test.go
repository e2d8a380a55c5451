package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quatton/expodist/apps/distribution/config"
	"github.com/quatton/expodist/pkg/kv"
	"github.com/quatton/expodist/pkg/objectstore"
)

func TestNewObjectStore_Memory(t *testing.T) {
	t.Setenv("DIST_ENVIRONMENT", "test")
	t.Setenv("DIST_OBJECTSTORE_BACKEND", config.BackendMemory)

	c, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	store, err := newObjectStore(context.Background(), c)
	if err != nil {
		t.Fatalf("newObjectStore failed: %v", err)
	}
	if _, ok := store.client.(*objectstore.RetryingClient); !ok {
		t.Errorf("Expected a retrying client, got %T", store.client)
	}
	if store.presigner != nil {
		t.Error("Expected no presigner for the memory backend")
	}

	locks, err := newLocks(c)
	if err != nil {
		t.Fatalf("newLocks failed: %v", err)
	}
	if _, ok := locks.(*kv.MemoryStore); !ok {
		t.Errorf("Expected in-process locks for the memory backend, got %T", locks)
	}
}

func TestRootCommands(t *testing.T) {
	want := []string{"assemble", "migrate", "openapi", "publish", "retention", "run", "schedule", "seed", "serve"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %s, got %v (%v)", name, cmd, err)
		}
	}
}

func TestNewDeps_MissingSigningKey(t *testing.T) {
	t.Setenv("DIST_ENVIRONMENT", "test")
	t.Setenv("DIST_OBJECTSTORE_BACKEND", config.BackendMemory)
	t.Setenv("DIST_PRIVATE_KEY_PATH", filepath.Join(t.TempDir(), "missing.pem"))

	c, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	d, err := newDeps(context.Background(), c)
	if err == nil {
		d.close()
		t.Fatal("Expected newDeps to fail without a signing key")
	}
	if !strings.Contains(err.Error(), "failed to load signing key") {
		t.Errorf("Expected a signing key error before connecting, got %v", err)
	}
}
