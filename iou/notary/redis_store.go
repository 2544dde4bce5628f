package notary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LerianStudio/lib-iou/iou"
	"github.com/LerianStudio/lib-iou/iou/log"
	"github.com/LerianStudio/lib-iou/iou/opentelemetry"
	iouredis "github.com/LerianStudio/lib-iou/iou/redis"
	"github.com/LerianStudio/lib-iou/iou/state"
	"github.com/redis/go-redis/v9"
)

// ErrEmptyNotaryName is returned when a RedisStore is built without a name.
var ErrEmptyNotaryName = errors.New("notary name is required")

// RedisStore keeps consumed inputs in Redis so several notary workers can
// share one uniqueness record. Commits are serialized by a distributed lock
// per notary.
type RedisStore struct {
	client  *iouredis.Client
	locks   iouredis.LockManager
	prefix  string
	lockKey string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore builds a store namespaced by notaryName.
func NewRedisStore(client *iouredis.Client, notaryName string) (*RedisStore, error) {
	if client == nil {
		return nil, iouredis.ErrNilClient
	}

	name := strings.TrimSpace(notaryName)
	if name == "" {
		return nil, ErrEmptyNotaryName
	}

	locks, err := iouredis.NewRedisLockManager(client)
	if err != nil {
		return nil, err
	}

	return &RedisStore{
		client:  client,
		locks:   locks,
		prefix:  "iou:notary:" + name + ":consumed:",
		lockKey: "lock:iou:notary:" + name,
	}, nil
}

func (s *RedisStore) key(ref state.StateRef) string {
	return s.prefix + ref.String()
}

func (s *RedisStore) Commit(ctx context.Context, txID string, refs []state.StateRef) error {
	if len(refs) == 0 {
		return nil
	}

	logger, tracer, _ := iou.NewTrackingFromContext(ctx)

	ctx, span := tracer.Start(ctx, "notary.redis_store.commit")
	defer span.End()

	err := s.locks.WithLockOptions(ctx, s.lockKey, iouredis.CommitLockOptions(), func(ctx context.Context) error {
		rdb, err := s.client.GetClient(ctx)
		if err != nil {
			return err
		}

		keys := make([]string, len(refs))
		for i, ref := range refs {
			keys[i] = s.key(ref)
		}

		current, err := rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("read consumed inputs: %w", err)
		}

		for i, value := range current {
			if by, ok := value.(string); ok && by != txID {
				return &ConflictError{Ref: refs[i], ConsumedBy: by}
			}
		}

		pairs := make([]any, 0, 2*len(keys))
		for _, key := range keys {
			pairs = append(pairs, key, txID)
		}

		if _, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.MSet(ctx, pairs...)
			return nil
		}); err != nil {
			return fmt.Errorf("write consumed inputs: %w", err)
		}

		return nil
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			opentelemetry.HandleSpanBusinessErrorEvent(&span, "notary.conflict", err)
			return err
		}

		logger.Log(ctx, log.LevelError, "failed to commit consumed inputs", log.TxID(txID), log.Err(err))
		opentelemetry.HandleSpanError(&span, "Failed to commit consumed inputs", err)

		return err
	}

	return nil
}

func (s *RedisStore) ConsumedBy(ctx context.Context, ref state.StateRef) (string, bool, error) {
	rdb, err := s.client.GetClient(ctx)
	if err != nil {
		return "", false, err
	}

	by, err := rdb.Get(ctx, s.key(ref)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("read consumed input %s: %w", ref, err)
	}

	return by, true, nil
}
