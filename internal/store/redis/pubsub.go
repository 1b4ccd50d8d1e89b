package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gosuda/tasktrail/internal/domain"
)

type PubSub struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

// NewFromClient wraps an existing client. The PubSub takes ownership of it.
func NewFromClient(client *redis.Client) *PubSub {
	return &PubSub{client: client}
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

// PublishAudit fans entry out to the system-wide feed and to the channel of
// the entity it describes.
func (ps *PubSub) PublishAudit(ctx context.Context, entry *domain.AuditLogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redis.PubSub.PublishAudit: marshal: %w", err)
	}

	var errs []error
	for _, ch := range []string{RecentAuditChannel(), EntityAuditChannel(entry.EntityType, entry.EntityID)} {
		if err := ps.Publish(ctx, ch, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("redis.PubSub.PublishAudit: %w", err)
	}
	return nil
}

func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Subscribe: receive confirmation: %w", err)
	}

	out := make(chan []byte, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// GetJSON loads a cached value into dst. found is false on a cache miss.
func (ps *PubSub) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := ps.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis.PubSub.GetJSON: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("redis.PubSub.GetJSON: unmarshal: %w", err)
	}
	return true, nil
}

// SetJSON caches v under key for ttl.
func (ps *PubSub) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis.PubSub.SetJSON: marshal: %w", err)
	}
	if err := ps.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.SetJSON: %w", err)
	}
	return nil
}

// RecentAuditChannel returns the Redis channel carrying every audit entry.
func RecentAuditChannel() string {
	return "audit:recent"
}

// EntityAuditChannel returns the Redis channel for one entity's audit entries.
func EntityAuditChannel(entityType domain.AuditEntityType, entityID string) string {
	return "audit:" + string(entityType) + ":" + entityID
}
