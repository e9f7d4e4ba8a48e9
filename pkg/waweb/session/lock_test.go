package session

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestReclaimLocks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("removes all marker files", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range lockMarkers {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
				t.Fatalf("creating marker: %v", err)
			}
		}

		ReclaimLocks(dir, logger)

		for _, name := range lockMarkers {
			if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
				t.Errorf("expected %s to be removed", name)
			}
		}
	})

	t.Run("leaves session data alone", func(t *testing.T) {
		dir := t.TempDir()
		dataPath := filepath.Join(dir, "session.db")
		if err := os.WriteFile(dataPath, []byte("data"), 0o600); err != nil {
			t.Fatalf("creating data file: %v", err)
		}

		ReclaimLocks(dir, logger)

		if _, err := os.Stat(dataPath); err != nil {
			t.Errorf("expected session.db to survive, got %v", err)
		}
	})

	t.Run("second call on same directory is a no-op", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "SingletonLock"), []byte("x"), 0o600); err != nil {
			t.Fatalf("creating marker: %v", err)
		}

		ReclaimLocks(dir, logger)
		// All markers already gone; must not fail or recreate anything.
		ReclaimLocks(dir, logger)

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("reading dir: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected empty dir, got %d entries", len(entries))
		}
	})

	t.Run("missing directory is tolerated", func(t *testing.T) {
		ReclaimLocks(filepath.Join(t.TempDir(), "does-not-exist"), logger)
	})
}
