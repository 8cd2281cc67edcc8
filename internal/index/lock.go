package index

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

// lockFileName lives directly under the data directory so it survives
// index directory swaps.
const lockFileName = "LOCK"

// BuildLock is a cross-process exclusive lock held for the duration of an
// index build. Queries are unaffected; only concurrent builds are excluded.
type BuildLock struct {
	fl *flock.Flock
}

// AcquireBuildLock takes the build lock for dataDir without blocking. A
// second builder gets an index-locked error immediately rather than
// queueing behind a long build.
func AcquireBuildLock(dataDir string) (*BuildLock, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, qaerrors.IO("create data directory", err)
	}

	fl := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, qaerrors.IO("acquire build lock", err)
	}
	if !locked {
		return nil, qaerrors.New(qaerrors.ErrCodeIndexLocked,
			"another codeqa process is building this index", nil).
			WithSuggestion("wait for the running build to finish and retry")
	}
	return &BuildLock{fl: fl}, nil
}

// Release drops the lock. Safe to call once per acquired lock.
func (l *BuildLock) Release() error {
	return l.fl.Unlock()
}
