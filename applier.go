package confidence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/confidence/confidence-go-client/internal/metrics"
)

// applySender delivers one batch of applied flags for a resolve token.
type applySender interface {
	sendApply(ctx context.Context, resolveToken string, flags []appliedFlagPayload) error
}

// applyKey dedups pending applies: at most one pending entry per
// (flag, resolve token) pair per flush window.
type applyKey struct {
	flagName     string
	resolveToken string
}

type applyStore struct {
	mu      sync.Mutex
	pending map[applyKey]time.Time
}

func (s *applyStore) insert(key applyKey, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = at
}

// drain atomically swaps the pending set for an empty one, so Log calls that
// race with a flush are neither lost nor double-counted.
func (s *applyStore) drain() map[applyKey]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	captured := s.pending
	s.pending = make(map[applyKey]time.Time)
	return captured
}

// requeue puts failed entries back for the next checkpoint. An entry logged
// again while its batch was in flight keeps the newer timestamp.
func (s *applyStore) requeue(entries map[applyKey]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, at := range entries {
		if _, ok := s.pending[key]; !ok {
			s.pending[key] = at
		}
	}
}

func (s *applyStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ApplyProcessor accumulates "flag was applied" events and flushes them to
// the backend on a timer, decoupling apply telemetry from evaluation calls.
type ApplyProcessor struct {
	sender  applySender
	store   *applyStore
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	batchSize   int
	maxInFlight int
}

func newApplyProcessor(ctx context.Context, sender applySender, interval time.Duration, log *slog.Logger, m *metrics.Metrics) *ApplyProcessor {
	processor := &ApplyProcessor{
		sender:      sender,
		store:       &applyStore{pending: make(map[applyKey]time.Time)},
		log:         log.With(slog.String("worker", "apply")),
		metrics:     m,
		now:         time.Now,
		batchSize:   ApplyBatchMaxSize,
		maxInFlight: ApplyMaxInFlight,
	}
	go processor.start(ctx, interval)
	return processor
}

func (p *ApplyProcessor) start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Log records that flagName was applied under resolveToken. Logging the same
// pair twice before a flush keeps a single pending entry. An empty resolve
// token is a no-op: without it the backend cannot correlate the apply.
func (p *ApplyProcessor) Log(flagName, resolveToken string) {
	if flagName == "" || resolveToken == "" {
		return
	}
	p.store.insert(applyKey{flagName: flagName, resolveToken: resolveToken}, p.now())
	p.metrics.PendingApplies.Set(float64(p.store.size()))
}

// Flush checkpoints the pending set and sends it as per-token batches of at
// most batchSize entries, with at most maxInFlight sends running at once.
// Failed batches are re-queued for the next checkpoint; delivery is
// at-least-once and duplicates after a partial failure are accepted.
func (p *ApplyProcessor) Flush(ctx context.Context) {
	captured := p.store.drain()
	if len(captured) == 0 {
		return
	}

	byToken := make(map[string]map[applyKey]time.Time)
	for key, at := range captured {
		group := byToken[key.resolveToken]
		if group == nil {
			group = make(map[applyKey]time.Time)
			byToken[key.resolveToken] = group
		}
		group[key] = at
	}

	// Sorted iteration keeps batch composition deterministic.
	tokens := maps.Keys(byToken)
	slices.Sort(tokens)

	var wg sync.WaitGroup
	inFlight := make(chan struct{}, p.maxInFlight)
	for _, resolveToken := range tokens {
		for _, batch := range p.partition(byToken[resolveToken]) {
			wg.Add(1)
			inFlight <- struct{}{}
			go func(resolveToken string, batch map[applyKey]time.Time) {
				defer wg.Done()
				defer func() { <-inFlight }()
				p.sendBatch(ctx, resolveToken, batch)
			}(resolveToken, batch)
		}
	}
	wg.Wait()
	p.metrics.PendingApplies.Set(float64(p.store.size()))
}

// Close forces a final synchronous checkpoint so pending applies are not
// silently dropped on shutdown. The flush goroutine itself stops with the
// context passed at construction.
func (p *ApplyProcessor) Close(ctx context.Context) {
	p.Flush(ctx)
}

func (p *ApplyProcessor) partition(entries map[applyKey]time.Time) []map[applyKey]time.Time {
	keys := maps.Keys(entries)
	slices.SortFunc(keys, func(a, b applyKey) int {
		if a.flagName < b.flagName {
			return -1
		}
		if a.flagName > b.flagName {
			return 1
		}
		return 0
	})

	var batches []map[applyKey]time.Time
	current := make(map[applyKey]time.Time)
	for _, key := range keys {
		current[key] = entries[key]
		if len(current) == p.batchSize {
			batches = append(batches, current)
			current = make(map[applyKey]time.Time)
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (p *ApplyProcessor) sendBatch(ctx context.Context, resolveToken string, batch map[applyKey]time.Time) {
	flags := make([]appliedFlagPayload, 0, len(batch))
	for key, at := range batch {
		flags = append(flags, appliedFlagPayload{Flag: key.flagName, ApplyTime: at})
	}
	slices.SortFunc(flags, func(a, b appliedFlagPayload) int {
		if a.Flag < b.Flag {
			return -1
		}
		if a.Flag > b.Flag {
			return 1
		}
		return 0
	})

	if err := p.sender.sendApply(ctx, resolveToken, flags); err != nil {
		p.log.Warn("failed to send applied flags, re-queueing",
			"error", err,
			slog.Int("count", len(flags)),
		)
		p.metrics.ApplyBatchesTotal.WithLabelValues("error").Inc()
		p.store.requeue(batch)
		return
	}
	p.metrics.ApplyBatchesTotal.WithLabelValues("ok").Inc()
}
