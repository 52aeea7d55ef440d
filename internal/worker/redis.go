package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/tilahungoito/healthydoc/internal/redis"
)

const (
	redisInvalidateChannel = "consult:invalidate"
	redisMetaPrefix        = "consult:meta:"
	redisStateTTL          = 2 * time.Hour
)

type invalidateMessage struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id"`
}

// stateRedis mirrors session metadata in redis and broadcasts invalidations
// so other nodes drop their local caches. All methods are nil-safe for
// single-node deployments without redis.
type stateRedis struct {
	client *redis.Client
}

func newStateCache(client *redis.Client) *stateRedis {
	if client == nil {
		return nil
	}
	return &stateRedis{client: client}
}

// startListener subscribes to the invalidation channel.
func (r *stateRedis) startListener(handler func(invalidateMessage)) {
	if r == nil || r.client == nil || handler == nil {
		return
	}
	raw := r.client.Raw()
	if raw == nil {
		return
	}
	go func() {
		ctx := context.Background()
		pubsub := raw.Subscribe(ctx, redisInvalidateChannel)
		ch := pubsub.Channel()
		for msg := range ch {
			var inv invalidateMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				log.Printf("consult invalidation decode failed: %v", err)
				continue
			}
			handler(inv)
		}
	}()
}

func (r *stateRedis) publishInvalidation(msg invalidateMessage) {
	if r == nil || r.client == nil {
		return
	}
	raw := r.client.Raw()
	if raw == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("consult invalidation marshal failed: %v", err)
		return
	}
	if err := raw.Publish(context.Background(), redisInvalidateChannel, payload).Err(); err != nil {
		log.Printf("consult publish invalidation failed: %v", err)
	}
}

func (r *stateRedis) cacheMeta(sessionID string, meta sessionMeta) {
	if r == nil || r.client == nil || sessionID == "" {
		return
	}
	data, err := json.Marshal(meta)
	if err != nil {
		log.Printf("consult meta marshal failed: %v", err)
		return
	}
	if err := r.client.Set(context.Background(), redisMetaPrefix+sessionID, data, redisStateTTL); err != nil {
		log.Printf("consult meta rdb failed: %v", err)
	}
}

func (r *stateRedis) loadMeta(sessionID string) (sessionMeta, bool) {
	if r == nil || r.client == nil || sessionID == "" {
		return sessionMeta{}, false
	}
	raw, err := r.client.Get(context.Background(), redisMetaPrefix+sessionID)
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("consult load meta rdb failed: %v", err)
		}
		return sessionMeta{}, false
	}
	var meta sessionMeta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		log.Printf("consult decode meta rdb failed: %v", err)
		return sessionMeta{}, false
	}
	return meta, true
}

func (r *stateRedis) invalidateMeta(sessionID string) {
	if r == nil || r.client == nil || sessionID == "" {
		return
	}
	if err := r.client.Del(context.Background(), redisMetaPrefix+sessionID); err != nil && err != redis.ErrCacheMiss {
		log.Printf("consult invalidate meta rdb failed: %v", err)
	}
}
