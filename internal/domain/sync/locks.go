package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrLockHeld is returned by LockRepository.Insert when the (user, kind)
// uniqueness constraint rejects the row: another holder is active.
var ErrLockHeld = errors.New("sync lock already held")

// Lock is one ephemeral mutual-exclusion row. A lock whose expiry has passed
// is logically free and is purged before acquisition attempts.
type Lock struct {
	ID         string
	UserID     int64
	Kind       string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// LockRepository defines storage access for sync locks.
type LockRepository interface {
	// Insert adds a lock row. Returns ErrLockHeld if a live lock for the
	// same (user, kind) exists.
	Insert(ctx context.Context, lock Lock) error

	// Delete removes a lock by id, reporting whether a row was deleted.
	Delete(ctx context.Context, lockID string) (bool, error)

	// Exists reports whether a lock row for (user, kind) exists.
	Exists(ctx context.Context, userID int64, kind string) (bool, error)

	// PurgeExpired deletes all locks whose expiry has passed.
	PurgeExpired(ctx context.Context) (int64, error)

	// DeleteByUserID removes every lock a user holds, any kind.
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)
}

// AcquireResult reports the outcome of a lock acquisition attempt.
// Contention is a result, not an error.
type AcquireResult struct {
	Acquired bool
	LockID   string
	Message  string
}

// LockManager provides per-(user, kind) mutual exclusion with TTL expiry.
// The uniqueness constraint gives atomic mutual exclusion without a
// transaction; the TTL bounds the blast radius of a crashed sync. Storage
// failures never propagate: every method degrades to a negative result and
// a log entry, because a sync must not crash over its lock bookkeeping.
type LockManager struct {
	repo   LockRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewLockManager creates a LockManager backed by the given repository.
func NewLockManager(repo LockRepository, logger *zap.Logger) *LockManager {
	return &LockManager{repo: repo, logger: logger, now: time.Now}
}

// Acquire attempts to take the (userID, kind) lock. Expired locks are purged
// first, best effort; a failed purge does not abort the attempt.
func (m *LockManager) Acquire(ctx context.Context, userID int64, kind string) AcquireResult {
	if _, err := m.repo.PurgeExpired(ctx); err != nil {
		m.logger.Warn("failed to purge expired sync locks", zap.Error(err))
	}

	now := m.now()
	lock := Lock{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       kind,
		AcquiredAt: now,
		ExpiresAt:  now.Add(lockTTL),
	}

	if err := m.repo.Insert(ctx, lock); err != nil {
		if errors.Is(err, ErrLockHeld) {
			return AcquireResult{
				Acquired: false,
				Message:  fmt.Sprintf("a %s is already running for this user, try again later", kind),
			}
		}
		m.logger.Error("failed to acquire sync lock",
			zap.Int64("userId", userID),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return AcquireResult{Acquired: false, Message: "failed to acquire sync lock"}
	}

	return AcquireResult{Acquired: true, LockID: lock.ID}
}

// Release deletes a lock by id. Failures are logged and reported as false;
// the caller must not crash because unlocking failed.
func (m *LockManager) Release(ctx context.Context, lockID string) bool {
	deleted, err := m.repo.Delete(ctx, lockID)
	if err != nil {
		m.logger.Error("failed to release sync lock", zap.String("lockId", lockID), zap.Error(err))
		return false
	}
	return deleted
}

// IsHeld reports whether a live lock exists for (userID, kind).
func (m *LockManager) IsHeld(ctx context.Context, userID int64, kind string) bool {
	if _, err := m.repo.PurgeExpired(ctx); err != nil {
		m.logger.Warn("failed to purge expired sync locks", zap.Error(err))
	}

	held, err := m.repo.Exists(ctx, userID, kind)
	if err != nil {
		m.logger.Error("failed to check sync lock", zap.Int64("userId", userID), zap.Error(err))
		return false
	}
	return held
}

// ForceReleaseAll removes every lock a user holds and returns the count.
func (m *LockManager) ForceReleaseAll(ctx context.Context, userID int64) int64 {
	count, err := m.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		m.logger.Error("failed to force-release sync locks", zap.Int64("userId", userID), zap.Error(err))
		return 0
	}
	return count
}
