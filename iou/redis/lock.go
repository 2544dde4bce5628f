package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LerianStudio/lib-iou/iou"
	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/opentelemetry"
	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
)

const maxLockTries = 1000

var (
	// ErrNilLockHandle is returned when a nil lock handle is used.
	ErrNilLockHandle = errors.New("lock handle is nil or not initialized")
	// ErrLockNotHeld is returned when unlock is called on a lock that was not held or already expired.
	ErrLockNotHeld = errors.New("lock was not held or already expired")
	// ErrNilLockFn is returned when a nil function is passed to WithLock.
	ErrNilLockFn = errors.New("lock function is nil")
	// ErrEmptyLockKey is returned when an empty lock key is provided.
	ErrEmptyLockKey = errors.New("lock key cannot be empty")
	// ErrInvalidLockOptions is returned when LockOptions fail validation.
	ErrInvalidLockOptions = errors.New("invalid lock options")
)

// LockHandle is an acquired lock.
type LockHandle interface {
	Unlock(ctx context.Context) error
}

// LockManager runs critical sections under named distributed locks.
type LockManager interface {
	WithLock(ctx context.Context, lockKey string, fn func(context.Context) error) error
	WithLockOptions(ctx context.Context, lockKey string, opts LockOptions, fn func(context.Context) error) error
	TryLock(ctx context.Context, lockKey string) (LockHandle, bool, error)
}

var _ LockManager = (*RedisLockManager)(nil)

// RedisLockManager implements LockManager with the RedLock algorithm.
//
//	err = locks.WithLock(ctx, "lock:iou:notary:main", func(ctx context.Context) error {
//	    return commit(ctx)
//	})
type RedisLockManager struct {
	redsync *redsync.Redsync
}

// LockOptions configures lock acquisition.
type LockOptions struct {
	// Expiry is how long the lock is held before auto-expiring.
	Expiry time.Duration
	// Tries is the number of acquisition attempts, at most 1000.
	Tries int
	// RetryDelay is the wait between attempts.
	RetryDelay time.Duration
	// DriftFactor accounts for clock drift, in [0, 1).
	DriftFactor float64
}

// DefaultLockOptions returns defaults for operations completing within seconds.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:      10 * time.Second,
		Tries:       3,
		RetryDelay:  500 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

// CommitLockOptions suits short commits contended by many concurrent
// submissions: short expiry, many fast retries.
func CommitLockOptions() LockOptions {
	return LockOptions{
		Expiry:      5 * time.Second,
		Tries:       64,
		RetryDelay:  25 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

type clientPool struct {
	conn *Client
}

func (p *clientPool) Get(ctx context.Context) (redsyncredis.Conn, error) {
	rdb, err := p.conn.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis client for lock pool: %w", err)
	}

	return goredis.NewPool(rdb).Get(ctx)
}

type lockHandle struct {
	mutex  *redsync.Mutex
	logger log.Logger
}

func (h *lockHandle) Unlock(ctx context.Context) error {
	if h == nil || h.mutex == nil {
		return ErrNilLockHandle
	}

	ok, err := h.mutex.UnlockContext(ctx)
	if errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return ErrLockNotHeld
	}

	if err != nil {
		h.logger.Log(ctx, log.LevelError, "failed to release lock", log.Err(err))
		return fmt.Errorf("distributed lock: unlock: %w", err)
	}

	if !ok {
		return ErrLockNotHeld
	}

	return nil
}

// NewRedisLockManager creates a lock manager over conn.
func NewRedisLockManager(conn *Client) (*RedisLockManager, error) {
	if conn == nil {
		return nil, ErrNilClient
	}

	if _, err := conn.GetClient(context.Background()); err != nil {
		return nil, err
	}

	return &RedisLockManager{redsync: redsync.New(&clientPool{conn: conn})}, nil
}

// WithLock runs fn while holding lockKey with DefaultLockOptions.
func (dl *RedisLockManager) WithLock(ctx context.Context, lockKey string, fn func(context.Context) error) error {
	return dl.WithLockOptions(ctx, lockKey, DefaultLockOptions(), fn)
}

// WithLockOptions runs fn while holding lockKey. The lock is released when fn
// returns, even on panic. Errors from fn are returned unwrapped so callers can
// match their own sentinels.
func (dl *RedisLockManager) WithLockOptions(ctx context.Context, lockKey string, opts LockOptions, fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilLockFn
	}

	if strings.TrimSpace(lockKey) == "" {
		return ErrEmptyLockKey
	}

	if err := validateLockOptions(opts); err != nil {
		return err
	}

	logger, tracer, _ := iou.NewTrackingFromContext(ctx)
	safeLockKey := safeLockKeyForLogs(lockKey)

	ctx, span := tracer.Start(ctx, "redis.lock.with_lock")
	defer span.End()

	mutex := dl.redsync.NewMutex(
		lockKey,
		redsync.WithExpiry(opts.Expiry),
		redsync.WithTries(opts.Tries),
		redsync.WithRetryDelay(opts.RetryDelay),
		redsync.WithDriftFactor(opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		logger.Log(ctx, log.LevelError, "failed to acquire lock", log.String("lock_key", safeLockKey), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to acquire lock", err)

		return fmt.Errorf("failed to acquire lock %s: %w", safeLockKey, err)
	}

	defer func() {
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			logger.Log(ctx, log.LevelError, "failed to release lock",
				log.String("lock_key", safeLockKey), log.Bool("unlock_ok", ok), log.Err(err))
		}
	}()

	if err := fn(ctx); err != nil {
		opentelemetry.HandleSpanBusinessErrorEvent(&span, "lock.fn_failed", err)
		return err
	}

	return nil
}

// TryLock attempts the lock once. A busy lock yields (nil, false, nil).
//
//nolint:ireturn
func (dl *RedisLockManager) TryLock(ctx context.Context, lockKey string) (LockHandle, bool, error) {
	if strings.TrimSpace(lockKey) == "" {
		return nil, false, ErrEmptyLockKey
	}

	logger, tracer, _ := iou.NewTrackingFromContext(ctx)
	safeLockKey := safeLockKeyForLogs(lockKey)

	ctx, span := tracer.Start(ctx, "redis.lock.try_lock")
	defer span.End()

	mutex := dl.redsync.NewMutex(lockKey, redsync.WithExpiry(DefaultLockOptions().Expiry), redsync.WithTries(1))

	if err := mutex.LockContext(ctx); err != nil {
		var taken redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) || strings.Contains(err.Error(), "lock already taken") {
			logger.Log(ctx, log.LevelDebug, "lock already held", log.String("lock_key", safeLockKey))
			return nil, false, nil
		}

		opentelemetry.HandleSpanError(&span, "Failed to attempt lock acquisition", err)

		return nil, false, fmt.Errorf("failed to attempt lock acquisition for %s: %w", safeLockKey, err)
	}

	return &lockHandle{mutex: mutex, logger: logger}, true, nil
}

func validateLockOptions(opts LockOptions) error {
	switch {
	case opts.Expiry <= 0:
		return fmt.Errorf("%w: expiry must be greater than 0", ErrInvalidLockOptions)
	case opts.Tries < 1 || opts.Tries > maxLockTries:
		return fmt.Errorf("%w: tries must be within [1, %d]", ErrInvalidLockOptions, maxLockTries)
	case opts.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay cannot be negative", ErrInvalidLockOptions)
	case opts.DriftFactor < 0 || opts.DriftFactor >= 1:
		return fmt.Errorf("%w: drift factor must be within [0, 1)", ErrInvalidLockOptions)
	}

	return nil
}

func safeLockKeyForLogs(lockKey string) string {
	const maxLockKeyLogLength = 128

	safeLockKey := strconv.QuoteToASCII(lockKey)
	if len(safeLockKey) <= maxLockKeyLogLength {
		return safeLockKey
	}

	return safeLockKey[:maxLockKeyLogLength] + "...(truncated)"
}
