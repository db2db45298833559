package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		m := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func TestConsumer_FailedMessageIsRetriedBeforeLaterOffsetCommits(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{
		{Partition: 0, Offset: 5},
		{Partition: 0, Offset: 6},
	}}
	c := newConsumer(r, 4, zaptest.NewLogger(t))
	c.retryBase, c.retryMax = time.Millisecond, 2*time.Millisecond

	var (
		mu    sync.Mutex
		calls = map[int64]int{}
		order []int64
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		calls[m.Offset]++
		if m.Offset == 5 && calls[5] < 3 {
			return errors.New("db down")
		}
		order = append(order, m.Offset)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{5, 6}, r.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{5, 6}, order)
	assert.Equal(t, 3, calls[5])
	assert.True(t, r.closed)
}

func TestConsumer_CancelDuringRetryCommitsNothing(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{{Partition: 1, Offset: 9}}}
	c := newConsumer(r, 1, zaptest.NewLogger(t))
	c.retryBase, c.retryMax = time.Millisecond, time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	attempts := make(chan struct{}, 100)
	h := func(context.Context, kafka.Message) error {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return errors.New("still down")
	}
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	<-attempts
	<-attempts
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.Empty(t, r.commits())
}
