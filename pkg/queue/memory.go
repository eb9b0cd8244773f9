package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"FinCast/pkg/logger"
)

// MemoryQueue runs jobs in process. Messages are lost on restart.
type MemoryQueue struct {
	registry
	config *QueueConfig
	ch     chan Message
	seq    atomic.Int64

	mu      sync.Mutex
	running bool
	dead    []Message
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMemoryQueue creates an in-process queue.
func NewMemoryQueue(lgr *logger.Logger, config *QueueConfig) *MemoryQueue {
	cfg := config.withDefaults()
	return &MemoryQueue{
		registry: newRegistry(lgr),
		config:   cfg,
		ch:       make(chan Message, cfg.QueueSize),
	}
}

func (q *MemoryQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}
	q.running = true
	q.ctx, q.cancel = context.WithCancel(context.Background())
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.log.Info("memory queue started", logger.Int("workers", q.config.Workers))
	return nil
}

func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		q.log.Info("memory queue stopped")
		return nil
	}
}

// PublishMessage enqueues without blocking. A full buffer is an error.
func (q *MemoryQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	if !running {
		return fmt.Errorf("queue not running")
	}
	if _, ok := q.lookup(msgType); !ok {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg := Message{
		ID:        strconv.FormatInt(q.seq.Add(1), 10),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return fmt.Errorf("queue full (%d messages)", cap(q.ch))
	}
}

// DeadLetters returns messages that exhausted their retries.
func (q *MemoryQueue) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.dead...)
}

func (q *MemoryQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.ch:
			switch q.run(q.ctx, msg, q.config) {
			case retry:
				msg.Attempts++
				q.wg.Add(1)
				go q.requeue(msg)
			case dead:
				q.mu.Lock()
				q.dead = append(q.dead, msg)
				q.mu.Unlock()
			}
		}
	}
}

func (q *MemoryQueue) requeue(msg Message) {
	defer q.wg.Done()
	select {
	case <-q.ctx.Done():
	case <-time.After(q.config.RetryDelay):
		select {
		case q.ch <- msg:
		case <-q.ctx.Done():
		}
	}
}
