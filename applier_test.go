package confidence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confidence/confidence-go-client/internal/metrics"
)

// recordingSender captures apply batches and can be told to fail.
type recordingSender struct {
	mu       sync.Mutex
	batches  []recordedBatch
	failNext bool

	inFlight    int
	maxInFlight int
}

type recordedBatch struct {
	resolveToken string
	flags        []appliedFlagPayload
}

func (s *recordingSender) sendApply(_ context.Context, resolveToken string, flags []appliedFlagPayload) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	fail := s.failNext
	if !fail {
		s.batches = append(s.batches, recordedBatch{resolveToken: resolveToken, flags: flags})
	}
	s.mu.Unlock()

	// Give concurrent sends a chance to overlap.
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()

	if fail {
		return errors.New("apply endpoint unavailable")
	}
	return nil
}

func (s *recordingSender) recorded() []recordedBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedBatch, len(s.batches))
	copy(out, s.batches)
	return out
}

func newTestApplyProcessor(t *testing.T, sender applySender) *ApplyProcessor {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	// A long interval keeps the timer out of the way; tests flush directly.
	return newApplyProcessor(ctx, sender, time.Hour, createLogger(), metrics.New())
}

func TestApplyLogIsIdempotentPerPair(t *testing.T) {
	sender := &recordingSender{}
	processor := newTestApplyProcessor(t, sender)

	processor.Log("flags/user", "tok-1")
	processor.Log("flags/user", "tok-1")
	processor.Flush(context.Background())

	batches := sender.recorded()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].flags, 1, "logging the same pair twice must produce one entry")
}

func TestApplyDistinctTokensAreSeparateBatches(t *testing.T) {
	sender := &recordingSender{}
	processor := newTestApplyProcessor(t, sender)

	processor.Log("flags/user", "tok-1")
	processor.Log("flags/user", "tok-2")
	processor.Flush(context.Background())

	batches := sender.recorded()
	require.Len(t, batches, 2)
	tokens := []string{batches[0].resolveToken, batches[1].resolveToken}
	assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, tokens)
}

func TestApplyPartitionsIntoBatchesOfAtMostMaxSize(t *testing.T) {
	sender := &recordingSender{}
	processor := newTestApplyProcessor(t, sender)

	for i := 0; i < 150; i++ {
		processor.Log(fmt.Sprintf("flags/flag-%03d", i), "tok-1")
	}
	processor.Flush(context.Background())

	batches := sender.recorded()
	require.Len(t, batches, 2, "150 entries for one token flush as two batches")
	sizes := []int{len(batches[0].flags), len(batches[1].flags)}
	assert.ElementsMatch(t, []int{ApplyBatchMaxSize, 50}, sizes)
}

func TestApplyFailedBatchIsRequeued(t *testing.T) {
	sender := &recordingSender{failNext: true}
	processor := newTestApplyProcessor(t, sender)

	processor.Log("flags/user", "tok-1")
	processor.Log("flags/other", "tok-1")
	processor.Flush(context.Background())

	require.Empty(t, sender.recorded(), "the failed batch must not be recorded as sent")
	assert.Equal(t, 2, processor.store.size(), "all entries reappear in the pending set")

	sender.mu.Lock()
	sender.failNext = false
	sender.mu.Unlock()

	processor.Flush(context.Background())
	batches := sender.recorded()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].flags, 2, "re-queued entries are included in the next checkpoint")
	assert.Equal(t, 0, processor.store.size())
}

func TestApplyConcurrencyCap(t *testing.T) {
	sender := &recordingSender{}
	processor := newTestApplyProcessor(t, sender)

	for i := 0; i < 20; i++ {
		processor.Log("flags/user", fmt.Sprintf("tok-%02d", i))
	}
	processor.Flush(context.Background())

	require.Len(t, sender.recorded(), 20)
	assert.LessOrEqual(t, sender.maxInFlight, ApplyMaxInFlight)
}

func TestApplyEmptyResolveTokenIsNoOp(t *testing.T) {
	sender := &recordingSender{}
	processor := newTestApplyProcessor(t, sender)

	processor.Log("flags/user", "")
	processor.Log("", "tok-1")
	processor.Flush(context.Background())

	assert.Empty(t, sender.recorded())
}

func TestApplyCloseDrainsSynchronously(t *testing.T) {
	sender := &recordingSender{}
	processor := newTestApplyProcessor(t, sender)

	processor.Log("flags/user", "tok-1")
	processor.Close(context.Background())

	require.Len(t, sender.recorded(), 1, "shutdown must not drop pending applies")
}

func TestApplyTimerFlushes(t *testing.T) {
	sender := &recordingSender{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processor := newApplyProcessor(ctx, sender, 10*time.Millisecond, createLogger(), metrics.New())

	processor.Log("flags/user", "tok-1")

	assert.Eventually(t, func() bool {
		return len(sender.recorded()) == 1
	}, time.Second, 10*time.Millisecond)

	// Entries logged during a send window are picked up by a later tick.
	processor.Log("flags/user", "tok-2")
	assert.Eventually(t, func() bool {
		return len(sender.recorded()) == 2
	}, time.Second, 10*time.Millisecond)
}
