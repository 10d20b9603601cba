package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/pkgwatch/internal/core/domain"
)

// DefaultChannel is the pub/sub channel availability transitions go to.
const DefaultChannel = "pkgwatch:transitions"

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// Client publishes availability transitions over Redis pub/sub.
// Nothing is stored; subscribers that are not listening miss the event.
type Client struct {
	rdb     *redis.Client
	channel string
}

// NewClient creates a new Redis client and checks the connection.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, channel: channelOrDefault(cfg.Channel)}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Channel returns the channel transitions are published on.
func (c *Client) Channel() string {
	return c.channel
}

// PublishTransition sends t as JSON on the configured channel.
func (c *Client) PublishTransition(ctx context.Context, t domain.Transition) error {
	payload, err := EncodeTransition(t)
	if err != nil {
		return err
	}
	if err := c.rdb.Publish(ctx, c.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// EncodeTransition returns the wire form of a transition.
func EncodeTransition(t domain.Transition) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transition: %w", err)
	}
	return data, nil
}

func channelOrDefault(ch string) string {
	if ch == "" {
		return DefaultChannel
	}
	return ch
}
