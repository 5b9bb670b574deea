package propagation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"

	"github.com/skuledger/skuledger/internal/metrics"
	"github.com/skuledger/skuledger/internal/model"
)

// SiteSource yields the currently active sites. The worker reads it for
// every job, so sites added or deactivated mid-flight take effect without
// a restart.
type SiteSource interface {
	ListActiveConfigs(ctx context.Context) ([]model.SiteConfig, error)
}

// MappingSource resolves a SKU to its remote catalog coordinates on one site.
// A nil mapping with nil error means the site does not carry the SKU.
type MappingSource interface {
	Get(ctx context.Context, siteID, sku string) (*model.SkuMapping, error)
}

// StockWriter pushes one stock level to a remote site.
type StockWriter interface {
	SetProductStock(ctx context.Context, productID int64, qty int) error
	SetVariationStock(ctx context.Context, productID, variationID int64, qty int) error
}

// StockWriterFactory builds the writer for one site.
type StockWriterFactory func(cfg model.SiteConfig) StockWriter

// FailureSink records pushes that exhausted their retries.
type FailureSink interface {
	Upsert(ctx context.Context, f *model.PropagationFailure) error
}

// Worker lifecycle states. The zero value is stopped; Start moves the worker
// to starting and a graceful Stop walks it through draining back to stopped.
const (
	stateStopped int32 = iota
	stateStarting
	stateDraining
)

// Worker is the single consumer of the propagation queue. It pushes each
// job's stock level to every active site, retrying per site with exponential
// backoff and dead-lettering pushes that never succeed.
type Worker struct {
	queue     *Queue
	sites     SiteSource
	mappings  MappingSource
	failures  FailureSink
	writerFor StockWriterFactory

	maxRetries int
	retryBase  time.Duration

	state atomic.Int32
	quit  chan struct{}
	done  chan struct{}
}

// NewWorker wires a worker to its queue and collaborators. maxRetries is the
// total number of write attempts per site (at least one); retryBase is the
// first backoff delay, doubling on each subsequent attempt.
func NewWorker(queue *Queue, sites SiteSource, mappings MappingSource, failures FailureSink, writerFor StockWriterFactory, maxRetries int, retryBase time.Duration) *Worker {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Worker{
		queue:      queue,
		sites:      sites,
		mappings:   mappings,
		failures:   failures,
		writerFor:  writerFor,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the worker goroutine. Call at most once.
func (w *Worker) Start(ctx context.Context) {
	w.state.Store(stateStarting)
	go w.run(ctx)
}

// Stop asks the worker to drain the queue and waits until it finishes or ctx
// expires. On timeout the worker keeps draining in the background and is
// abandoned at process exit. Call at most once, after Start.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.quit)
	select {
	case <-w.done:
		log.Info().Msg("propagation worker stopped")
		return nil
	case <-ctx.Done():
		log.Warn().
			Int("pending", w.queue.Len()).
			Msg("propagation queue did not drain before timeout")
		return ctx.Err()
	}
}

// State reports the lifecycle phase: "stopped", "starting", or "draining".
func (w *Worker) State() string {
	switch w.state.Load() {
	case stateStarting:
		return "starting"
	case stateDraining:
		return "draining"
	default:
		return "stopped"
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.state.Store(stateStopped)

	log.Info().Msg("propagation worker started")

	for {
		select {
		case job := <-w.queue.Jobs():
			w.handle(ctx, job)
			metrics.QueueDepth.Set(float64(w.queue.Len()))
		case <-w.quit:
			w.state.Store(stateDraining)
			w.drain(ctx)
			return
		}
	}
}

// drain consumes whatever is already queued, then returns. New jobs enqueued
// while draining are picked up too; the non-blocking receive only gives up
// on an empty queue.
func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case job := <-w.queue.Jobs():
			w.handle(ctx, job)
			metrics.QueueDepth.Set(float64(w.queue.Len()))
		default:
			log.Info().Msg("propagation queue drained")
			return
		}
	}
}

// handle pushes one job to every active site. A panic is contained here so
// one bad job cannot kill the worker; the job counts as done either way.
func (w *Worker) handle(ctx context.Context, job model.JobSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("sku", job.SKU).
				Msg("propagation job panicked")
		}
	}()

	sites, err := w.sites.ListActiveConfigs(ctx)
	if err != nil {
		log.Error().
			Err(err).
			Str("sku", job.SKU).
			Msg("could not list active sites, job dropped")
		return
	}

	for _, site := range sites {
		w.pushToSite(ctx, site, job)
	}
}

// errNoMapping marks a site that does not carry the SKU. It is returned
// unwrapped so the retry loop stops immediately instead of backing off.
var errNoMapping = errors.New("no mapping for sku")

// pushToSite writes one stock level to one site. Sites without a mapping for
// the SKU are satisfied by definition; anything else, the mapping lookup
// included, is retried and finally dead-lettered.
func (w *Worker) pushToSite(ctx context.Context, site model.SiteConfig, job model.JobSnapshot) {
	writer := w.writerFor(site)
	attempts := 0
	backoff := retry.NewExponential(w.retryBase)
	err := retry.Do(ctx, retry.WithMaxRetries(uint64(w.maxRetries-1), backoff), func(ctx context.Context) error {
		attempts++
		mapping, err := w.mappings.Get(ctx, site.SiteID, job.SKU)
		if err != nil {
			log.Warn().
				Err(err).
				Str("site_id", site.SiteID).
				Str("sku", job.SKU).
				Int("attempt", attempts).
				Msg("mapping lookup failed")
			return retry.RetryableError(err)
		}
		if mapping == nil {
			return errNoMapping
		}
		if err := w.write(ctx, writer, mapping, job.StockQuantity); err != nil {
			log.Warn().
				Err(err).
				Str("site_id", site.SiteID).
				Str("sku", job.SKU).
				Int("attempt", attempts).
				Msg("stock push failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if errors.Is(err, errNoMapping) {
		metrics.PropagationPushes.WithLabelValues("skipped").Inc()
		log.Warn().
			Str("site_id", site.SiteID).
			Str("sku", job.SKU).
			Msg("no mapping for sku, site skipped")
		return
	}
	if err != nil {
		w.deadLetter(ctx, site.SiteID, job, err, attempts)
		return
	}

	metrics.PropagationPushes.WithLabelValues("ok").Inc()
	log.Info().
		Str("site_id", site.SiteID).
		Str("sku", job.SKU).
		Int("stock_quantity", job.StockQuantity).
		Msg("stock pushed to site")
}

func (w *Worker) write(ctx context.Context, writer StockWriter, m *model.SkuMapping, qty int) error {
	if m.VariationID != nil {
		return writer.SetVariationStock(ctx, m.ProductID, *m.VariationID, qty)
	}
	return writer.SetProductStock(ctx, m.ProductID, qty)
}

// deadLetter records an exhausted push so an operator can replay it later.
// At most one row exists per (site, sku); newer failures overwrite older ones.
func (w *Worker) deadLetter(ctx context.Context, siteID string, job model.JobSnapshot, pushErr error, attempts int) {
	metrics.PropagationPushes.WithLabelValues("dead_letter").Inc()
	log.Error().
		Err(pushErr).
		Str("site_id", siteID).
		Str("sku", job.SKU).
		Int("attempts", attempts).
		Msg("stock push exhausted retries, dead-lettered")

	failure := &model.PropagationFailure{
		SiteID:   siteID,
		SKU:      job.SKU,
		Payload:  job,
		Error:    pushErr.Error(),
		Attempts: attempts,
	}
	if err := w.failures.Upsert(ctx, failure); err != nil {
		log.Error().
			Err(err).
			Str("site_id", siteID).
			Str("sku", job.SKU).
			Msg("could not record propagation failure")
	}
}
