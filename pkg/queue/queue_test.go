package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/pkg/logger"
)

type request struct {
	Symbol string `json:"symbol"`
}

type recordingJob struct {
	mu       sync.Mutex
	seen     []string
	failures int
	done     chan struct{}
}

func (j *recordingJob) Name() string { return "record" }
func (j *recordingJob) Type() string { return "forecast" }

func (j *recordingJob) Handle(_ context.Context, payload interface{}) error {
	req, err := ParsePayload[request](payload)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seen = append(j.seen, req.Symbol)
	if len(j.seen) <= j.failures {
		return errors.New("flaky")
	}
	close(j.done)
	return nil
}

func TestParsePayload(t *testing.T) {
	got, err := ParsePayload[request](json.RawMessage(`{"symbol":"AAPL"}`))
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Symbol)

	got, err = ParsePayload[request](request{Symbol: "MSFT"})
	require.NoError(t, err)
	assert.Equal(t, "MSFT", got.Symbol)

	got, err = ParsePayload[request](map[string]interface{}{"symbol": "NVDA"})
	require.NoError(t, err)
	assert.Equal(t, "NVDA", got.Symbol)

	_, err = ParsePayload[request](42)
	assert.Error(t, err)
}

func TestMemoryQueueRetriesThenSucceeds(t *testing.T) {
	q := NewMemoryQueue(logger.Nop(), &QueueConfig{Workers: 2, RetryLimit: 2, RetryDelay: time.Millisecond})
	job := &recordingJob{failures: 1, done: make(chan struct{})}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.PublishMessage(context.Background(), "forecast", request{Symbol: "AAPL"}))

	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Equal(t, []string{"AAPL", "AAPL"}, job.seen)
	assert.Empty(t, q.DeadLetters())
}

func TestMemoryQueueDeadLetters(t *testing.T) {
	q := NewMemoryQueue(logger.Nop(), &QueueConfig{Workers: 1, RetryLimit: 1, RetryDelay: time.Millisecond})
	job := &recordingJob{failures: 100, done: make(chan struct{})}
	q.RegisterJob(job)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.PublishMessage(context.Background(), "forecast", request{Symbol: "TSLA"}))
	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, q.DeadLetters()[0].Attempts)
}

func TestMemoryQueueRejects(t *testing.T) {
	q := NewMemoryQueue(logger.Nop(), &QueueConfig{QueueSize: 1})
	assert.Error(t, q.PublishMessage(context.Background(), "forecast", nil), "not running")

	q.RegisterJob(&recordingJob{done: make(chan struct{})})
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())
	assert.Error(t, q.PublishMessage(context.Background(), "unknown", nil))
}
