package workflowinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/go-redis/redis/v8"
)

const (
	stateKeyPrefix  = "convo:execstate:"
	defaultStateTTL = 24 * time.Hour
)

// RedisStateStore caches execution state with a TTL and enforces the
// optimistic version check on writes: Put succeeds only when the stored
// version still matches, then persists with Version+1. Concurrent turns for
// the same execution lose cleanly instead of merging.
type RedisStateStore struct {
	redis *redis.Client
	ttl   time.Duration
}

var _ workflow.StateStore = (*RedisStateStore)(nil)

func NewRedisStateStore(redisClient *redis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &RedisStateStore{redis: redisClient, ttl: ttl}
}

func stateKey(executionID kernel.ExecutionID) string {
	return stateKeyPrefix + executionID.String()
}

func (s *RedisStateStore) Get(ctx context.Context, executionID kernel.ExecutionID) (*workflow.ExecutionState, error) {
	data, err := s.redis.Get(ctx, stateKey(executionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, workflow.ErrStateNotFound().
				WithDetail("execution_id", executionID.String())
		}
		return nil, errx.Wrap(err, "failed to get execution state", errx.TypeInternal).
			WithDetail("execution_id", executionID.String())
	}

	var state workflow.ExecutionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, errx.Wrap(err, "failed to unmarshal execution state", errx.TypeInternal).
			WithDetail("execution_id", executionID.String())
	}

	return &state, nil
}

// Put performs the optimistic write under WATCH: the transaction aborts if
// another writer touches the key between read and write, and a stored
// version ahead of ours is a conflict the caller must resolve by reloading.
func (s *RedisStateStore) Put(ctx context.Context, state *workflow.ExecutionState) error {
	key := stateKey(state.ExecutionID)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return errx.Wrap(err, "failed to read current state", errx.TypeInternal)
		}

		if err != redis.Nil {
			var stored workflow.ExecutionState
			if err := json.Unmarshal([]byte(current), &stored); err != nil {
				return errx.Wrap(err, "failed to unmarshal stored state", errx.TypeInternal)
			}
			if stored.Version != state.Version {
				return workflow.ErrStateConflict().
					WithDetail("execution_id", state.ExecutionID.String()).
					WithDetail("expected_version", state.Version).
					WithDetail("stored_version", stored.Version)
			}
		}

		next := *state
		next.Version = state.Version + 1
		next.UpdatedAt = time.Now()

		data, err := json.Marshal(&next)
		if err != nil {
			return errx.Wrap(err, "failed to marshal execution state", errx.TypeInternal)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		state.Version = next.Version
		state.UpdatedAt = next.UpdatedAt
		return nil
	}

	err := s.redis.Watch(ctx, txf, key)
	if err == redis.TxFailedErr {
		return workflow.ErrStateConflict().
			WithDetail("execution_id", state.ExecutionID.String()).
			WithDetail("reason", "concurrent write")
	}
	if err != nil {
		if errx.IsType(err, errx.TypeConflict) {
			return err
		}
		return errx.Wrap(err, fmt.Sprintf("failed to put execution state %s", state.ExecutionID), errx.TypeInternal)
	}

	return nil
}

func (s *RedisStateStore) Delete(ctx context.Context, executionID kernel.ExecutionID) error {
	if err := s.redis.Del(ctx, stateKey(executionID)).Err(); err != nil {
		return errx.Wrap(err, "failed to delete execution state", errx.TypeInternal).
			WithDetail("execution_id", executionID.String())
	}
	return nil
}
