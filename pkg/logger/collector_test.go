package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]ErrorDigest
}

func (p *recordingPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]ErrorDigest))
	return nil
}

func TestCollectorGroupsRepeatedErrors(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewErrorCollector(CollectorConfig{Interval: time.Hour, MaxUnique: 100, Topic: "errs", Publisher: pub})

	c.Add("error", "fetch failed", map[string]interface{}{"symbol": "AAPL"}, "a.go:1")
	c.Add("error", "fetch failed", map[string]interface{}{"symbol": "MSFT"}, "a.go:1")
	c.Add("error", "train failed", nil, "b.go:2")
	assert.Equal(t, 2, c.Pending())

	c.Close()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "errs", pub.topic)
	batch := pub.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "fetch failed", batch[0].Message)
	assert.Equal(t, 2, batch[0].Count)
	assert.Equal(t, "MSFT", batch[0].Fields["symbol"])
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewErrorCollector(CollectorConfig{Interval: time.Hour, MaxUnique: 2, Publisher: pub})
	defer c.Close()

	c.Add("error", "one", nil, "x")
	c.Add("error", "two", nil, "x")
	assert.Equal(t, 0, c.Pending())
}

func TestLoggerForwardsErrorsToCollector(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewErrorCollector(CollectorConfig{Interval: time.Hour, Publisher: pub})
	l := Nop()
	l.AttachCollector(c)

	l.Info("ignored")
	l.Error("boom", Error(errors.New("disk full")), String("symbol", "AAPL"))
	assert.Equal(t, 1, c.Pending())

	l.DetachCollector()
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "disk full", pub.batches[0][0].Fields["error"])
}
