package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"scholar-assistant/internal/domain"
)

// SnapshotPublisher difunde snapshots a capas de presentación fuera del proceso.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snap domain.SessionSnapshot) error
}

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type redisSnapshotPublisher struct {
	client redisPublisher
	prefix string
}

// NewRedisSnapshotPublisher publica cada snapshot como JSON en el canal
// <prefix><session_id>. Solo usa PUBLISH: nada queda guardado en Redis.
func NewRedisSnapshotPublisher(client *redis.Client, prefix string) SnapshotPublisher {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = "assistant:session:"
	}
	return &redisSnapshotPublisher{client: client, prefix: prefix}
}

func (p *redisSnapshotPublisher) Publish(ctx context.Context, snap domain.SessionSnapshot) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel(snap.SessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (p *redisSnapshotPublisher) channel(sessionID string) string {
	return p.prefix + sessionID
}
