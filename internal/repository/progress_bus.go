package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	applogger "FinCast/pkg/logger"
)

const subscriberBuffer = 64

// MemoryProgressBus delivers events to subscribers in this process. A slow
// subscriber misses epoch events but always gets the terminal one.
type MemoryProgressBus struct {
	mu     sync.Mutex
	subs   map[string]map[chan models.ProgressEvent]struct{}
	closed bool
}

func NewMemoryProgressBus() *MemoryProgressBus {
	return &MemoryProgressBus{subs: make(map[string]map[chan models.ProgressEvent]struct{})}
}

func (b *MemoryProgressBus) Publish(_ context.Context, ev models.ProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.JobID] {
		deliver(ch, ev)
	}
	return nil
}

func deliver(ch chan models.ProgressEvent, ev models.ProgressEvent) {
	if !ev.Status.Terminal() {
		select {
		case ch <- ev:
		default:
		}
		return
	}
	// make room for the terminal event
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (b *MemoryProgressBus) Subscribe(_ context.Context, jobID string) (<-chan models.ProgressEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, fmt.Errorf("progress bus closed")
	}
	ch := make(chan models.ProgressEvent, subscriberBuffer)
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan models.ProgressEvent]struct{})
	}
	b.subs[jobID][ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[jobID][ch]; ok {
				delete(b.subs[jobID], ch)
				close(ch)
			}
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
		})
	}
	return ch, cancel, nil
}

func (b *MemoryProgressBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, id)
	}
	b.closed = true
	return nil
}

// RedisProgressBus relays events over Redis Pub/Sub so a websocket on one
// replica sees a job running on another.
type RedisProgressBus struct {
	client *redis.Client
	prefix string
	l      *applogger.Logger
}

func NewRedisProgressBus(client *redis.Client, prefix string, l *applogger.Logger) *RedisProgressBus {
	if prefix == "" {
		prefix = "fincast"
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &RedisProgressBus{client: client, prefix: prefix, l: l}
}

func (b *RedisProgressBus) channel(jobID string) string {
	return b.prefix + ":progress:" + jobID
}

func (b *RedisProgressBus) Publish(ctx context.Context, ev models.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(ev.JobID), data).Err(); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

func (b *RedisProgressBus) Subscribe(ctx context.Context, jobID string) (<-chan models.ProgressEvent, func(), error) {
	ps := b.client.Subscribe(ctx, b.channel(jobID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe progress: %w", err)
	}

	out := make(chan models.ProgressEvent, subscriberBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev models.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.l.Warn("bad progress payload", applogger.String("job_id", jobID), applogger.Error(err))
					continue
				}
				deliver(out, ev)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (b *RedisProgressBus) Close() error { return nil }

var (
	_ domrepo.ProgressBus = (*MemoryProgressBus)(nil)
	_ domrepo.ProgressBus = (*RedisProgressBus)(nil)
)
