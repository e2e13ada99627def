// Package redis implements the pub/sub event sink.
//
// Each event in a flushed batch is published to a configurable channel as a
// msgpack-encoded structured record for downstream monitors. Publish
// failures never propagate to producers; they only advance an error counter.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/swordworks/dsv4l2/rt"
	"github.com/swordworks/dsv4l2/types"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "dsv4l2:events"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the Redis pub/sub sink.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: dsv4l2:events).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
}

// wireEvent is the structured representation published on the channel.
type wireEvent struct {
	TsNs     uint64 `msgpack:"ts_ns"`
	DevID    uint32 `msgpack:"dev_id"`
	Type     uint16 `msgpack:"type"`
	TypeName string `msgpack:"type_name"`
	Severity uint16 `msgpack:"severity"`
	Aux      uint32 `msgpack:"aux"`
	Layer    uint32 `msgpack:"layer"`
	Role     string `msgpack:"role"`
	Mission  string `msgpack:"mission,omitempty"`
}

// Sink publishes event batches via Redis PUBLISH.
type Sink struct {
	config   Config
	client   *goredis.Client
	failures atomic.Uint64
}

// New creates a Redis sink from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis sink requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis sink: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Sink{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Write publishes each event in the batch. Implements the sink contract:
// the batch slice is not retained, and failures are absorbed.
func (s *Sink) Write(batch []types.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	for i := range batch {
		ev := &batch[i]
		body, err := msgpack.Marshal(wireEvent{
			TsNs:     ev.TsNs,
			DevID:    ev.DevID,
			Type:     uint16(ev.Type),
			TypeName: ev.Type.String(),
			Severity: uint16(ev.Severity),
			Aux:      ev.Aux,
			Layer:    ev.Layer,
			Role:     ev.RoleString(),
			Mission:  ev.MissionString(),
		})
		if err != nil {
			s.failures.Add(1)
			continue
		}
		if err := s.client.Publish(ctx, s.config.Channel, body).Err(); err != nil {
			s.failures.Add(1)
		}
	}
}

// Func adapts the sink to the runtime sink signature.
func (s *Sink) Func() rt.SinkFunc { return s.Write }

// Failures returns the count of publish failures absorbed so far.
func (s *Sink) Failures() uint64 { return s.failures.Load() }

// Close releases the client.
func (s *Sink) Close() error {
	return s.client.Close()
}
