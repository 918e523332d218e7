// Package lock guards a repository against concurrent batch writers with a
// marker file.
//
// The marker is created exclusively, so at most one owner holds a
// repository at a time across processes. Acquiring never waits and a lock
// never expires: a marker left behind by a crashed process stays until it
// is broken by hand.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MarkerName is the lock file created in the repository root.
const MarkerName = ".ddrsync.lock"

// Status is the outcome of a lock operation.
type Status int

const (
	StatusOK Status = iota
	StatusLocked
	StatusNotLocked
	StatusOwnerMismatch
	StatusReleaseFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusLocked:
		return "locked"
	case StatusNotLocked:
		return "not_locked"
	case StatusOwnerMismatch:
		return "owner_mismatch"
	case StatusReleaseFailed:
		return "release_failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Info is the content of a lock marker.
type Info struct {
	Owner     string    `json:"owner"`
	Reason    string    `json:"reason,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Host      string    `json:"host,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOwner returns a fresh owner token.
func NewOwner() string {
	return uuid.NewString()
}

// Lock is the lock of one repository.
type Lock struct {
	repo string
	path string
	log  *zap.Logger
	now  func() time.Time

	remove func(string) error
}

// New returns the lock bound to a repository directory.
func New(repo string, logger *zap.Logger) *Lock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lock{
		repo: repo,
		path: filepath.Join(repo, MarkerName),
		log:  logger,
		now:  time.Now,

		remove: os.Remove,
	}
}

// Path returns the marker file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock for owner. A held lock, even one held by owner
// itself, yields StatusLocked and a *LockConflictError.
func (l *Lock) Acquire(owner, reason string) (Status, error) {
	if owner == "" {
		return StatusLocked, errors.New("lock owner must not be empty")
	}

	host, _ := os.Hostname()
	info := Info{
		Owner:     owner,
		Reason:    reason,
		PID:       os.Getpid(),
		Host:      host,
		CreatedAt: l.now().UTC().Truncate(time.Second),
	}
	data, err := json.Marshal(info)
	if err != nil {
		return StatusLocked, fmt.Errorf("failed to encode lock marker: %w", err)
	}

	// #nosec G304 - marker path is fixed under the repository root
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		holder, _, perr := l.Peek()
		if perr != nil {
			holder = Info{Owner: "unknown"}
		}
		l.log.Debug("lock held", zap.String("repo", l.repo), zap.String("holder", holder.Owner))
		return StatusLocked, &LockConflictError{Path: l.repo, Holder: holder}
	}
	if err != nil {
		return StatusLocked, fmt.Errorf("failed to create lock marker: %w", err)
	}

	_, werr := f.Write(append(data, '\n'))
	if werr == nil {
		werr = f.Sync()
	}
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(l.path)
		return StatusLocked, fmt.Errorf("failed to write lock marker: %w", errors.Join(werr, cerr))
	}

	l.log.Info("lock acquired", zap.String("repo", l.repo), zap.String("owner", owner), zap.String("reason", reason))
	return StatusOK, nil
}

// Release drops the lock if owner holds it.
func (l *Lock) Release(owner string) (Status, error) {
	holder, held, err := l.Peek()
	if err != nil {
		return StatusReleaseFailed, err
	}
	if !held {
		return StatusNotLocked, nil
	}
	if holder.Owner != owner {
		return StatusOwnerMismatch, fmt.Errorf("%w: %s", ErrOwnerMismatch, holder.Owner)
	}
	if err := l.remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.log.Error("lock release failed", zap.String("repo", l.repo), zap.Error(err))
		return StatusReleaseFailed, fmt.Errorf("failed to remove lock marker: %w", err)
	}
	l.log.Info("lock released", zap.String("repo", l.repo), zap.String("owner", owner))
	return StatusOK, nil
}

// Peek reads the marker without changing it.
func (l *Lock) Peek() (Info, bool, error) {
	// #nosec G304 - marker path is fixed under the repository root
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, fmt.Errorf("failed to read lock marker: %w", err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		// a marker is being written, or was left half-written by a crash
		return Info{Owner: "unknown"}, true, nil
	}
	return info, true, nil
}

// Break removes the marker regardless of owner and returns what it held.
// It is meant for operators clearing a lock left by a dead process.
func (l *Lock) Break() (Info, bool, error) {
	info, held, err := l.Peek()
	if err != nil || !held {
		return info, held, err
	}
	if err := l.remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return info, true, fmt.Errorf("failed to remove lock marker: %w", err)
	}
	l.log.Warn("lock broken", zap.String("repo", l.repo), zap.String("owner", info.Owner))
	return info, true, nil
}
