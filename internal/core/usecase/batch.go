package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
	"github.com/kirillkom/adtrack-console/internal/core/ports"
)

const publishTimeout = 5 * time.Second

type BatchOptions struct {
	// PacingDelay is waited after every successful request unit before the
	// next one is issued.
	PacingDelay time.Duration
	Publisher   ports.BatchEventPublisher
	Observer    ports.BatchObserver
}

// BatchController drives one batch at a time from staged files to a settled
// result set. Units run sequentially in staging order. Every state change
// goes through apply, which drops writes from superseded generations.
type BatchController struct {
	client    ports.InferenceClient
	catalog   ports.ModelCatalog
	publisher ports.BatchEventPublisher
	observer  ports.BatchObserver
	pacing    time.Duration
	sleep     func(ctx context.Context, d time.Duration)

	mu          sync.Mutex
	generation  uint64
	current     batchState
	subscribers map[chan domain.BatchSnapshot]struct{}
}

type batchState struct {
	id       string
	model    string
	state    domain.BatchState
	progress domain.Progress
	results  []domain.Result
}

func NewBatchController(client ports.InferenceClient, catalog ports.ModelCatalog, opts BatchOptions) *BatchController {
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &BatchController{
		client:      client,
		catalog:     catalog,
		publisher:   opts.Publisher,
		observer:    observer,
		pacing:      opts.PacingDelay,
		sleep:       sleepContext,
		current:     batchState{state: domain.BatchIdle},
		subscribers: make(map[chan domain.BatchSnapshot]struct{}),
	}
}

// Start validates the staged input, enters the submitting state and runs the
// request units in the background.
func (c *BatchController) Start(ctx context.Context, input domain.StagedInput) (*domain.BatchSnapshot, error) {
	gen, units, snapshot, err := c.begin(input)
	if err != nil {
		return nil, err
	}
	go c.run(ctx, gen, snapshot.BatchID, units)
	return snapshot, nil
}

// Submit is Start followed by waiting for the batch to settle. The returned
// snapshot always describes this batch, even if a newer submission or a
// reset superseded it meanwhile.
func (c *BatchController) Submit(ctx context.Context, input domain.StagedInput) (*domain.BatchSnapshot, error) {
	gen, units, snapshot, err := c.begin(input)
	if err != nil {
		return nil, err
	}
	results, current := c.run(ctx, gen, snapshot.BatchID, units)
	if current {
		settled := c.Snapshot()
		return &settled, nil
	}

	return &domain.BatchSnapshot{
		BatchID:    snapshot.BatchID,
		Model:      snapshot.Model,
		State:      domain.BatchSettled,
		Progress:   domain.Progress{Completed: len(results), Total: len(units)},
		Results:    results,
		Summary:    domain.Summarize(results),
		Superseded: true,
	}, nil
}

// Reset discards the current result set. Units still in flight are not
// cancelled, but their outcomes are dropped.
func (c *BatchController) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	if c.current.state == domain.BatchSubmitting {
		slog.Info("batch_reset_while_submitting", "batch_id", c.current.id, "completed", c.current.progress.Completed, "total", c.current.progress.Total)
	}
	c.current = batchState{state: domain.BatchIdle}
	c.broadcastLocked()
}

func (c *BatchController) Snapshot() domain.BatchSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Result returns the result at index for the detail view.
func (c *BatchController) Result(index int) (domain.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.current.results) {
		return domain.Result{}, domain.WrapError(domain.ErrResultNotFound, "get result", fmt.Errorf("index=%d results=%d", index, len(c.current.results)))
	}
	return c.current.results[index], nil
}

// Subscribe returns a feed of snapshots. The channel always holds the latest
// state; intermediate states may be skipped for slow readers.
func (c *BatchController) Subscribe() (<-chan domain.BatchSnapshot, func()) {
	ch := make(chan domain.BatchSnapshot, 1)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, ch)
			c.mu.Unlock()
		})
	}
	return ch, cancel
}

func (c *BatchController) begin(input domain.StagedInput) (uint64, []domain.InferenceRequest, *domain.BatchSnapshot, error) {
	if input.Model == "" && c.catalog != nil {
		if model, ok := c.catalog.Default(); ok {
			input.Model = model.Name
		}
	}

	units := input.RequestUnits()
	if len(units) == 0 {
		return 0, nil, nil, domain.WrapError(
			domain.ErrInvalidInput,
			"submit batch",
			errors.New("stage at least one transcript file or an audio file"),
		)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.current = batchState{
		id:       uuid.NewString(),
		model:    input.Model,
		state:    domain.BatchSubmitting,
		progress: domain.Progress{Total: len(units)},
		results:  make([]domain.Result, 0, len(units)),
	}
	c.observer.BatchStarted(len(units))
	slog.Info("batch_started", "batch_id", c.current.id, "model", input.Model, "units", len(units))

	snapshot := c.snapshotLocked()
	c.broadcastLocked()
	return c.generation, units, &snapshot, nil
}

// run executes the units of generation gen in order. It returns the results
// this run produced and whether the batch was still current when it settled.
func (c *BatchController) run(ctx context.Context, gen uint64, batchID string, units []domain.InferenceRequest) ([]domain.Result, bool) {
	started := time.Now()
	results := make([]domain.Result, 0, len(units))

	for idx, unit := range units {
		if !c.isCurrent(gen) {
			slog.Info("batch_superseded", "batch_id", batchID, "completed", idx, "total", len(units))
			c.observer.BatchSettled(domain.Summarize(results), time.Since(started), true)
			return results, false
		}

		result := c.executeUnit(ctx, batchID, idx, unit)
		results = append(results, result)

		c.apply(gen, func(s *batchState) {
			s.results = append(s.results, result)
			s.progress.Completed++
		})
	}

	var event domain.BatchSettledEvent
	current := c.apply(gen, func(s *batchState) {
		s.state = domain.BatchSettled
		event = settledEvent(s, time.Since(started))
	})
	summary := domain.Summarize(results)
	c.observer.BatchSettled(summary, time.Since(started), !current)
	if !current {
		slog.Info("batch_superseded", "batch_id", batchID, "completed", len(results), "total", len(units))
		return results, false
	}

	slog.Info("batch_settled",
		"batch_id", batchID,
		"total", summary.Total,
		"positive", summary.Positive,
		"negative", summary.Negative,
		"failed", summary.Failed,
		"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
	)
	c.publish(ctx, event)
	return results, true
}

func (c *BatchController) executeUnit(ctx context.Context, batchID string, idx int, unit domain.InferenceRequest) domain.Result {
	filename := unit.SourceName()
	start := time.Now()

	raw, err := c.client.Submit(ctx, unit)
	c.observer.UnitSettled(unit.ModelName, err != nil, time.Since(start))
	if err != nil {
		slog.Warn("batch_unit_failed",
			"batch_id", batchID,
			"unit", idx,
			"filename", filename,
			"model", unit.ModelName,
			"error", err,
		)
		return domain.FailedResult(filename, domain.FailureMessage(err))
	}

	result := Normalize(raw, filename, unit.ModelName)
	slog.Debug("batch_unit_settled", "batch_id", batchID, "unit", idx, "filename", filename, "positive", result.IsPositive)
	if c.pacing > 0 {
		c.sleep(ctx, c.pacing)
	}
	return result
}

func (c *BatchController) apply(gen uint64, mutate func(*batchState)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	mutate(&c.current)
	c.broadcastLocked()
	return true
}

func (c *BatchController) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

func (c *BatchController) publish(ctx context.Context, event domain.BatchSettledEvent) {
	if c.publisher == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.publisher.PublishBatchSettled(publishCtx, event); err != nil {
		slog.Warn("batch_event_publish_failed", "batch_id", event.BatchID, "error", err)
	}
}

func (c *BatchController) snapshotLocked() domain.BatchSnapshot {
	results := append([]domain.Result{}, c.current.results...)
	snapshot := domain.BatchSnapshot{
		BatchID:  c.current.id,
		Model:    c.current.model,
		State:    c.current.state,
		Loading:  c.current.state == domain.BatchSubmitting,
		Progress: c.current.progress,
		Results:  results,
		Summary:  domain.Summarize(results),
	}
	if c.catalog != nil {
		snapshot.Models = c.catalog.Models()
	}
	return snapshot
}

func (c *BatchController) broadcastLocked() {
	if len(c.subscribers) == 0 {
		return
	}
	snapshot := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func settledEvent(s *batchState, elapsed time.Duration) domain.BatchSettledEvent {
	filenames := make([]string, 0, len(s.results))
	for _, r := range s.results {
		filenames = append(filenames, r.Filename)
	}
	return domain.BatchSettledEvent{
		BatchID:    s.id,
		Model:      s.model,
		Summary:    domain.Summarize(s.results),
		Filenames:  filenames,
		DurationMS: float64(elapsed.Microseconds()) / 1000.0,
		SettledAt:  time.Now().UTC(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type noopObserver struct{}

func (noopObserver) BatchStarted(int) {}
func (noopObserver) UnitSettled(string, bool, time.Duration) {}
func (noopObserver) BatchSettled(domain.BatchSummary, time.Duration, bool) {}
