// Package events publishes domain events to Redis pub/sub for realtime
// consumers. Publishing is fire-and-forget: failures are logged and never
// affect the request that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	TrackCreated        = "track.created"
	PlaylistShared      = "playlist.shared"
	PlaylistShareAccept = "playlist.share_accepted"
)

// Event is the JSON message published on the events channel.
type Event struct {
	Type    string         `json:"type"`
	UserID  string         `json:"userId"`
	Payload map[string]any `json:"payload,omitempty"`
	At      time.Time      `json:"at"`
}

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) {}

// RedisPublisher publishes events to a single Redis channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  *log.Logger
	now     func() time.Time
}

var (
	_ Publisher = (*RedisPublisher)(nil)
	_ Publisher = Nop{}
)

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(rdb *redis.Client, channel string, logger *log.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel, logger: logger, now: time.Now}
}

// Dial parses a redis:// URL, connects and verifies the connection.
func Dial(ctx context.Context, url, channel string, logger *log.Logger) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return NewRedisPublisher(rdb, channel, logger), nil
}

// Publish marshals e and publishes it. A zero At is set to now.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = p.now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("marshal event", "type", e.Type, "err", err)
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Warn("publish event", "type", e.Type, "channel", p.channel, "err", err)
	}
}

// Close closes the underlying client.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
