package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/tank-siting/internal/domain"
	"github.com/couchcryptid/tank-siting/internal/observability"
)

// BatchExtractor reads up to batchSize stage events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.StageEvent, error)
}

// Router applies a stage event to the owning session and exposes session
// snapshots. The session manager implements it.
type Router interface {
	Apply(ctx context.Context, ev domain.StageEvent) (session string, err error)
	Snapshot(session string) (domain.SessionSnapshot, error)
}

// SnapshotPublisher delivers refreshed session snapshots downstream.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap domain.SessionSnapshot) error
}

// Pipeline orchestrates the extract-apply-publish loop.
type Pipeline struct {
	extractor BatchExtractor
	router    Router
	publisher SnapshotPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, r Router, p SnapshotPublisher, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		router:    r,
		publisher: p,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil if the pipeline has applied at least one stage
// event, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not applied any stage events yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-apply-publish cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = 200 * time.Millisecond

	applied, ok := p.applyAndPublish(ctx, batch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if applied > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// applyAndPublish routes each event in the batch to its session, publishes
// one refreshed snapshot per touched session, and commits offsets. Returns
// the number of successfully applied events and false if the pipeline should
// stop.
func (p *Pipeline) applyAndPublish(ctx context.Context, batch []domain.StageEvent, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	appliedEvents := make([]domain.StageEvent, 0, len(batch))
	var touched []string
	seen := make(map[string]bool)

	for _, ev := range batch {
		p.metrics.StageEventsConsumed.WithLabelValues(eventStage(ev)).Inc()

		session, err := p.router.Apply(ctx, ev)
		if err != nil {
			if ctx.Err() != nil {
				return 0, false
			}
			p.logger.Warn("apply stage event failed, skipping message",
				"error", err,
				"topic", ev.Topic,
				"partition", ev.Partition,
				"offset", ev.Offset,
			)
			p.metrics.ApplyErrors.Inc()
			p.commitOffset(ctx, ev)
			continue
		}
		appliedEvents = append(appliedEvents, ev)
		if !seen[session] {
			seen[session] = true
			touched = append(touched, session)
		}
	}

	if len(appliedEvents) == 0 {
		return 0, true
	}

	for _, session := range touched {
		snap, err := p.router.Snapshot(session)
		if err != nil {
			p.logger.Error("snapshot failed", "error", err, "session", session)
			return 0, p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		if err := p.publisher.PublishSnapshot(ctx, snap); err != nil {
			// Offsets stay uncommitted; merges are idempotent on replay.
			p.logger.Error("publish snapshot failed", "error", err, "session", session)
			return 0, p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		p.metrics.SnapshotsPublished.Inc()
	}

	for _, ev := range appliedEvents {
		p.commitOffset(ctx, ev)
	}

	return len(appliedEvents), true
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, ev domain.StageEvent) {
	if ev.Commit == nil {
		return
	}
	if err := ev.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", ev.Topic, "partition", ev.Partition, "offset", ev.Offset)
	}
}

func eventStage(ev domain.StageEvent) string {
	if s, ok := ev.Headers["stage"]; ok && s != "" {
		return s
	}
	return "unknown"
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
