package workflowinfra

import (
	"context"
	"encoding/json"
	"log"

	"github.com/Abraxas-365/convo/workflow"
	"github.com/Abraxas-365/craftable/errx"
	"github.com/go-redis/redis/v8"
)

const outboundQueueKey = "convo:outbound_messages"

// RedisQueuePublisher pushes outbound email/SMS messages onto a Redis list.
// The communications service consumes with BRPOP; the engine's contract
// ends at a successful push.
type RedisQueuePublisher struct {
	redis *redis.Client
}

var _ workflow.QueuePublisher = (*RedisQueuePublisher)(nil)

func NewRedisQueuePublisher(redisClient *redis.Client) *RedisQueuePublisher {
	return &RedisQueuePublisher{redis: redisClient}
}

func (p *RedisQueuePublisher) Publish(ctx context.Context, msg workflow.OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errx.Wrap(err, "failed to marshal outbound message", errx.TypeInternal)
	}

	if err := p.redis.LPush(ctx, outboundQueueKey, data).Err(); err != nil {
		return errx.Wrap(err, "failed to enqueue outbound message", errx.TypeInternal).
			WithDetail("kind", string(msg.Kind))
	}

	log.Printf("📬 Enqueued %s message to %s", msg.Kind, msg.To)
	return nil
}
