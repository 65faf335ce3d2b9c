package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
)

const pushTimeout = 2 * time.Second

// ConnectRedis opens a client for cfg and verifies it with PING.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

type listPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisPublisher appends events as JSON to a Redis list. Events are queued in
// memory and pushed by a single goroutine; when the queue is full the event
// is dropped and counted.
type RedisPublisher struct {
	rdb     listPusher
	queue   string
	metrics *metrics.Metrics
	log     *slog.Logger

	ch chan Event

	// failing is set by the last push that errored and cleared by the next
	// one that succeeds.
	failing atomic.Bool

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewRedisPublisher(rdb listPusher, queue string, bufferSize int, m *metrics.Metrics, log *slog.Logger) *RedisPublisher {
	if log == nil {
		log = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = config.DefaultEventsBufferSize
	}
	p := &RedisPublisher{
		rdb:     rdb,
		queue:   queue,
		metrics: m,
		log:     log,
		ch:      make(chan Event, bufferSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *RedisPublisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.Inc(metrics.EventsDropped)
		return
	}
	select {
	case p.ch <- ev:
	default:
		p.metrics.Inc(metrics.EventsDropped)
	}
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for ev := range p.ch {
		data, err := json.Marshal(ev)
		if err != nil {
			p.metrics.Inc(metrics.EventsPublishFailures)
			p.log.Warn("failed to marshal lobby event", "type", ev.Type, "err", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		err = p.rdb.RPush(ctx, p.queue, data).Err()
		cancel()
		if err != nil {
			p.metrics.Inc(metrics.EventsPublishFailures)
			if !p.failing.Swap(true) {
				p.log.Warn("failed to RPush lobby event", "queue", p.queue, "type", ev.Type, "err", err)
			}
			continue
		}
		if p.failing.Swap(false) {
			p.log.Info("lobby event feed recovered", "queue", p.queue)
		}
		p.metrics.Inc(metrics.EventsPublished)
	}
}

// Healthy reports whether the most recent push succeeded.
func (p *RedisPublisher) Healthy() bool {
	return !p.failing.Load()
}

// Close stops accepting events and waits until queued ones are pushed or ctx
// is done.
func (p *RedisPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
