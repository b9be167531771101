// Package publish pushes command results to Redis so other lab services can
// follow instrument state.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tturner/labctl/internal/frame"
	"github.com/tturner/labctl/internal/logging"
)

// HistoryLimit is how many messages per device are kept in the history list.
const HistoryLimit = 1000

// Message is the JSON document published for one exchange.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	Command   string    `json:"command"`
	Target    uint16    `json:"target"`
	Type      string    `json:"type,omitempty"`
	Value     any       `json:"value,omitempty"`
	RawHex    string    `json:"raw_hex,omitempty"`
	RTTMs     float64   `json:"rtt_ms"`
	Error     string    `json:"error,omitempty"`
}

// NewMessage builds a message from a result or an error.
func NewMessage(device string, target uint16, res frame.Result, rtt time.Duration, err error) Message {
	msg := Message{
		Timestamp: time.Now().UTC(),
		Device:    device,
		Command:   res.Command,
		Target:    target,
		RTTMs:     float64(rtt.Microseconds()) / 1000.0,
	}
	if err != nil {
		msg.Error = err.Error()
		return msg
	}
	msg.Type = res.Type.String()
	msg.Value = res.Value()
	msg.RawHex = frame.FormatHex(res.Raw)
	return msg
}

// HistoryKey is the list holding recent messages for device.
func HistoryKey(device string) string {
	return fmt.Sprintf("labctl:%s:results", device)
}

// client is the subset of *redis.Client the publisher uses.
type client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	PoolSize int
}

// Publisher publishes messages to a Redis channel and keeps a bounded
// per-device history list.
type Publisher struct {
	client  client
	channel string
	log     *logging.Logger
}

// Dial connects to Redis and checks the connection with PING.
func Dial(ctx context.Context, opts Options, log *logging.Logger) (*Publisher, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	log.Info("Connected to redis %s, publishing on %s", opts.Addr, opts.Channel)
	return newPublisher(rc, opts.Channel, log), nil
}

func newPublisher(c client, channel string, log *logging.Logger) *Publisher {
	if log == nil {
		log = logging.Discard()
	}
	return &Publisher{client: c, channel: channel, log: log}
}

// Channel returns the publish channel.
func (p *Publisher) Channel() string { return p.channel }

// Publish sends msg to the channel and appends it to the device history.
// History failures are logged, not returned.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}

	key := HistoryKey(msg.Device)
	if err := p.client.LPush(ctx, key, data).Err(); err != nil {
		p.log.Error("Saving history to %s failed: %v", key, err)
		return nil
	}
	if err := p.client.LTrim(ctx, key, 0, HistoryLimit-1).Err(); err != nil {
		p.log.Debug("Trimming %s failed: %v", key, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
