package workflowinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Abraxas-365/convo/pkg/kernel"
	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/go-redis/redis/v8"
)

const (
	delayedResumesKey = "convo:delayed_resumes" // Sorted set
	resumePrefix      = "convo:resume:"         // Serialized DelayedResume
)

// RedisDelaySchedule indexes pending resumes in a sorted set scored by the
// resume deadline. Due claims entries with ZRem so concurrent sweepers
// never hand out the same resume twice.
type RedisDelaySchedule struct {
	redis *redis.Client
}

var _ workflow.DelaySchedule = (*RedisDelaySchedule)(nil)

func NewRedisDelaySchedule(redisClient *redis.Client) *RedisDelaySchedule {
	return &RedisDelaySchedule{redis: redisClient}
}

func resumeKey(executionID kernel.ExecutionID) string {
	return resumePrefix + executionID.String()
}

func (s *RedisDelaySchedule) Schedule(ctx context.Context, resume workflow.DelayedResume) error {
	data, err := json.Marshal(resume)
	if err != nil {
		return errx.Wrap(err, "failed to marshal delayed resume", errx.TypeInternal)
	}

	// Keep the payload an hour past the deadline so a lagging sweeper can
	// still pick it up.
	ttl := time.Until(resume.ResumeAt) + time.Hour
	if err := s.redis.Set(ctx, resumeKey(resume.ExecutionID), data, ttl).Err(); err != nil {
		return errx.Wrap(err, "failed to store delayed resume", errx.TypeInternal).
			WithDetail("execution_id", resume.ExecutionID.String())
	}

	score := float64(resume.ResumeAt.Unix())
	if err := s.redis.ZAdd(ctx, delayedResumesKey, &redis.Z{
		Score:  score,
		Member: resume.ExecutionID.String(),
	}).Err(); err != nil {
		return errx.Wrap(err, "failed to schedule delayed resume", errx.TypeInternal).
			WithDetail("execution_id", resume.ExecutionID.String())
	}

	log.Printf("⏰ Scheduled resume for execution %s at %v", resume.ExecutionID, resume.ResumeAt)
	return nil
}

// Due returns up to limit resumes whose deadline has passed, claiming each
// one atomically.
func (s *RedisDelaySchedule) Due(ctx context.Context, now time.Time, limit int64) ([]workflow.DelayedResume, error) {
	members, err := s.redis.ZRangeByScore(ctx, delayedResumesKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, errx.Wrap(err, "failed to fetch due resumes", errx.TypeInternal)
	}

	if len(members) == 0 {
		return nil, nil
	}

	due := make([]workflow.DelayedResume, 0, len(members))
	for _, member := range members {
		removed, err := s.redis.ZRem(ctx, delayedResumesKey, member).Result()
		if err != nil || removed == 0 {
			// Another sweeper claimed it.
			continue
		}

		executionID := kernel.ExecutionID(member)
		data, err := s.redis.Get(ctx, resumeKey(executionID)).Result()
		if err != nil {
			log.Printf("⚠️  Missing resume payload for %s: %v", executionID, err)
			continue
		}

		var resume workflow.DelayedResume
		if err := json.Unmarshal([]byte(data), &resume); err != nil {
			log.Printf("⚠️  Corrupt resume payload for %s: %v", executionID, err)
			continue
		}

		s.redis.Del(ctx, resumeKey(executionID))
		due = append(due, resume)
	}

	return due, nil
}

func (s *RedisDelaySchedule) Remove(ctx context.Context, executionID kernel.ExecutionID) error {
	if err := s.redis.ZRem(ctx, delayedResumesKey, executionID.String()).Err(); err != nil {
		return errx.Wrap(err, "failed to remove delayed resume", errx.TypeInternal).
			WithDetail("execution_id", executionID.String())
	}
	return s.redis.Del(ctx, resumeKey(executionID)).Err()
}
