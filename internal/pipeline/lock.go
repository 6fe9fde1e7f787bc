package pipeline

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultLockName is the stable cross-process advisory lock name for remote
// directory provisioning, shared by every sibling agent process regardless
// of which repository invoked it.
const DefaultLockName = "git-lfs-synology.create-target-folder.lock"

// acquireNamedLock opens (creating if absent) the lock file at path and
// takes an exclusive, blocking flock on it — a platform-neutral stand-in for
// a named mutex, sufficient to serialize root-directory provisioning across
// any number of sibling agent processes git-lfs spawns concurrently.
func acquireNamedLock(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock: %w", err)
	}
	return f, nil
}

// releaseNamedLock unlocks and closes a lock acquired by acquireNamedLock.
// It is safe to call on every exit path, including after a failed
// provisioning attempt, so a crashed or erroring process never leaves the
// lock held for the next one.
func releaseNamedLock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	_ = f.Close()
}
