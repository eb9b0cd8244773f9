package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a batch of digests. The Kafka producer satisfies it.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectorConfig struct {
	Interval  time.Duration // flush period
	MaxUnique int           // flush early once this many distinct errors are pending
	Topic     string
	Publisher Publisher
}

// ErrorDigest groups repeated errors that share a message and call site.
// Fields hold the most recent occurrence.
type ErrorDigest struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Fields    map[string]interface{} `json:"fields"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

type ErrorCollector struct {
	cfg     CollectorConfig
	mu      sync.Mutex
	pending map[string]*ErrorDigest
	sends   sync.WaitGroup
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewErrorCollector creates a collector and starts its flush loop.
func NewErrorCollector(cfg CollectorConfig) *ErrorCollector {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxUnique <= 0 {
		cfg.MaxUnique = 100
	}
	c := &ErrorCollector{
		cfg:     cfg,
		pending: make(map[string]*ErrorDigest),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go c.loop()
	return c
}

func (c *ErrorCollector) Add(level, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	key := digestKey(level, message, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.pending[key]; ok {
		d.Count++
		d.LastSeen = now
		d.Fields = fields
	} else {
		c.pending[key] = &ErrorDigest{
			Level:     level,
			Message:   message,
			Caller:    caller,
			Fields:    fields,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	if len(c.pending) >= c.cfg.MaxUnique {
		c.flushLocked()
	}
}

// Pending returns the number of distinct errors awaiting a flush.
func (c *ErrorCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func digestKey(level, message, caller string) string {
	h := sha256.New()
	h.Write([]byte(level))
	h.Write([]byte{0})
	h.Write([]byte(message))
	h.Write([]byte{0})
	h.Write([]byte(caller))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *ErrorCollector) loop() {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.stop:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

func (c *ErrorCollector) flushLocked() {
	if len(c.pending) == 0 || c.cfg.Publisher == nil {
		return
	}
	batch := make([]ErrorDigest, 0, len(c.pending))
	for _, d := range c.pending {
		batch = append(batch, *d)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Count > batch[j].Count })
	c.pending = make(map[string]*ErrorDigest)

	c.sends.Add(1)
	go func() {
		defer c.sends.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			// the logger itself may be what is failing
			_, _ = os.Stderr.WriteString("error digest publish failed: " + err.Error() + "\n")
		}
	}()
}

// Close flushes what is pending and waits for in-flight publishes.
func (c *ErrorCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
		c.sends.Wait()
	})
}
