// Package session – lock.go clears stale exclusivity markers from the
// session directory. A crashed process can leave these behind; if they
// survive into the next start the new client instance can never acquire
// the directory, so reclaiming runs before every (re)initialization.
package session

import (
	"log/slog"
	"os"
	"path/filepath"
)

// lockMarkers is the fixed set of exclusivity marker files a previous
// process may have left behind.
var lockMarkers = []string{
	"SingletonLock",
	"SingletonCookie",
	"SingletonSocket",
}

// ReclaimLocks removes stale lock markers from dir. Absence is normal and
// removal failure is non-fatal: a crashed prior process holds no real
// lock, so the worst case is that the client reports the conflict itself.
// Calling it twice on the same directory is a no-op the second time.
func ReclaimLocks(dir string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, name := range lockMarkers {
		path := filepath.Join(dir, name)
		err := os.Remove(path)
		switch {
		case err == nil:
			logger.Info("session: removed stale lock marker", "path", path)
		case os.IsNotExist(err):
			// Nothing to reclaim.
		default:
			logger.Warn("session: could not remove lock marker", "path", path, "error", err)
		}
	}
}
