package propagation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skuledger/skuledger/internal/model"
)

type fakeSiteSource struct {
	configs []model.SiteConfig
	err     error
}

func (f *fakeSiteSource) ListActiveConfigs(ctx context.Context) ([]model.SiteConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.configs, nil
}

type fakeMappingSource struct {
	mappings map[string]*model.SkuMapping // keyed by siteID/sku
	err      error
}

func (f *fakeMappingSource) Get(ctx context.Context, siteID, sku string) (*model.SkuMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mappings[siteID+"/"+sku], nil
}

type fakeFailureSink struct {
	failures []*model.PropagationFailure
	err      error
}

func (f *fakeFailureSink) Upsert(ctx context.Context, failure *model.PropagationFailure) error {
	if f.err != nil {
		return f.err
	}
	f.failures = append(f.failures, failure)
	return nil
}

type stockWrite struct {
	productID   int64
	variationID int64
	qty         int
}

// fakeWriter records successful writes. failFirst makes the first n calls
// fail with a transient error; err makes every call fail.
type fakeWriter struct {
	productWrites   []stockWrite
	variationWrites []stockWrite
	failFirst       int
	err             error
	calls           int
}

func (f *fakeWriter) SetProductStock(ctx context.Context, productID int64, qty int) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.calls <= f.failFirst {
		return errors.New("site temporarily down")
	}
	f.productWrites = append(f.productWrites, stockWrite{productID: productID, qty: qty})
	return nil
}

func (f *fakeWriter) SetVariationStock(ctx context.Context, productID, variationID int64, qty int) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.calls <= f.failFirst {
		return errors.New("site temporarily down")
	}
	f.variationWrites = append(f.variationWrites, stockWrite{productID: productID, variationID: variationID, qty: qty})
	return nil
}

func singleSite(siteID string) *fakeSiteSource {
	return &fakeSiteSource{configs: []model.SiteConfig{{SiteID: siteID, BaseURL: "https://" + siteID + ".example.com"}}}
}

func mappingFor(siteID, sku string, productID int64, variationID *int64) *fakeMappingSource {
	return &fakeMappingSource{mappings: map[string]*model.SkuMapping{
		siteID + "/" + sku: {SiteID: siteID, SKU: sku, ProductID: productID, VariationID: variationID},
	}}
}

func newTestWorker(q *Queue, sites SiteSource, mappings MappingSource, failures FailureSink, writer StockWriter) *Worker {
	return NewWorker(q, sites, mappings, failures, func(model.SiteConfig) StockWriter { return writer }, 3, time.Millisecond)
}

func testJob(sku string, qty int) model.JobSnapshot {
	return model.JobSnapshot{SKU: sku, StockQuantity: qty, EnqueuedAt: time.Now().UTC()}
}

func TestWorker_PushesProductStock(t *testing.T) {
	writer := &fakeWriter{}
	failures := &fakeFailureSink{}
	w := newTestWorker(NewQueue(1), singleSite("store-a"), mappingFor("store-a", "WIDGET-1", 812, nil), failures, writer)

	w.handle(context.Background(), testJob("WIDGET-1", 7))

	require.Len(t, writer.productWrites, 1)
	assert.Equal(t, stockWrite{productID: 812, qty: 7}, writer.productWrites[0])
	assert.Empty(t, writer.variationWrites)
	assert.Empty(t, failures.failures)
}

func TestWorker_PushesVariationStock(t *testing.T) {
	variationID := int64(77)
	writer := &fakeWriter{}
	failures := &fakeFailureSink{}
	w := newTestWorker(NewQueue(1), singleSite("store-a"), mappingFor("store-a", "TEE-RED-M", 812, &variationID), failures, writer)

	w.handle(context.Background(), testJob("TEE-RED-M", 3))

	require.Len(t, writer.variationWrites, 1)
	assert.Equal(t, stockWrite{productID: 812, variationID: 77, qty: 3}, writer.variationWrites[0])
	assert.Empty(t, writer.productWrites)
	assert.Empty(t, failures.failures)
}

func TestWorker_MissingMappingIsSatisfied(t *testing.T) {
	writer := &fakeWriter{}
	failures := &fakeFailureSink{}
	w := newTestWorker(NewQueue(1), singleSite("store-a"), &fakeMappingSource{}, failures, writer)

	w.handle(context.Background(), testJob("UNKNOWN-SKU", 7))

	assert.Zero(t, writer.calls)
	assert.Empty(t, failures.failures)
}

func TestWorker_RetriesTransientFailures(t *testing.T) {
	writer := &fakeWriter{failFirst: 2}
	failures := &fakeFailureSink{}
	w := newTestWorker(NewQueue(1), singleSite("store-a"), mappingFor("store-a", "WIDGET-1", 812, nil), failures, writer)

	w.handle(context.Background(), testJob("WIDGET-1", 7))

	assert.Equal(t, 3, writer.calls)
	require.Len(t, writer.productWrites, 1)
	assert.Empty(t, failures.failures)
}

func TestWorker_DeadLettersAfterRetriesExhausted(t *testing.T) {
	writer := &fakeWriter{err: errors.New("status 503")}
	failures := &fakeFailureSink{}
	w := newTestWorker(NewQueue(1), singleSite("store-a"), mappingFor("store-a", "WIDGET-1", 812, nil), failures, writer)

	job := testJob("WIDGET-1", 7)
	w.handle(context.Background(), job)

	assert.Equal(t, 3, writer.calls)
	require.Len(t, failures.failures, 1)
	failure := failures.failures[0]
	assert.Equal(t, "store-a", failure.SiteID)
	assert.Equal(t, "WIDGET-1", failure.SKU)
	assert.Equal(t, 3, failure.Attempts)
	assert.Contains(t, failure.Error, "status 503")
	assert.Equal(t, job, failure.Payload)
}

func TestWorker_PartialSuccessAcrossSites(t *testing.T) {
	writerA := &fakeWriter{}
	writerB := &fakeWriter{err: errors.New("status 502")}
	sites := &fakeSiteSource{configs: []model.SiteConfig{{SiteID: "store-a"}, {SiteID: "store-b"}}}
	mappings := &fakeMappingSource{mappings: map[string]*model.SkuMapping{
		"store-a/WIDGET-1": {SiteID: "store-a", SKU: "WIDGET-1", ProductID: 812},
		"store-b/WIDGET-1": {SiteID: "store-b", SKU: "WIDGET-1", ProductID: 99},
	}}
	failures := &fakeFailureSink{}
	writerFor := func(cfg model.SiteConfig) StockWriter {
		if cfg.SiteID == "store-a" {
			return writerA
		}
		return writerB
	}
	w := NewWorker(NewQueue(1), sites, mappings, failures, writerFor, 3, time.Millisecond)

	w.handle(context.Background(), testJob("WIDGET-1", 7))

	require.Len(t, writerA.productWrites, 1)
	assert.Equal(t, 3, writerB.calls)
	require.Len(t, failures.failures, 1)
	assert.Equal(t, "store-b", failures.failures[0].SiteID)
}

func TestWorker_SiteListErrorDropsJob(t *testing.T) {
	writer := &fakeWriter{}
	failures := &fakeFailureSink{}
	sites := &fakeSiteSource{err: errors.New("connection refused")}
	w := newTestWorker(NewQueue(1), sites, &fakeMappingSource{}, failures, writer)

	w.handle(context.Background(), testJob("WIDGET-1", 7))

	assert.Zero(t, writer.calls)
	assert.Empty(t, failures.failures)
}

func TestWorker_MappingLookupErrorRetriesThenDeadLetters(t *testing.T) {
	writer := &fakeWriter{}
	failures := &fakeFailureSink{}
	mappings := &fakeMappingSource{err: errors.New("connection refused")}
	w := newTestWorker(NewQueue(1), singleSite("store-a"), mappings, failures, writer)

	w.handle(context.Background(), testJob("WIDGET-1", 7))

	assert.Zero(t, writer.calls)
	require.Len(t, failures.failures, 1)
	assert.Equal(t, 3, failures.failures[0].Attempts)
	assert.Contains(t, failures.failures[0].Error, "connection refused")
}

func TestWorker_RetryBudgetFloorsAtOneAttempt(t *testing.T) {
	writer := &fakeWriter{err: errors.New("status 500")}
	failures := &fakeFailureSink{}
	w := NewWorker(NewQueue(1), singleSite("store-a"), mappingFor("store-a", "WIDGET-1", 812, nil), failures,
		func(model.SiteConfig) StockWriter { return writer }, 0, time.Millisecond)

	w.handle(context.Background(), testJob("WIDGET-1", 7))

	assert.Equal(t, 1, writer.calls)
	require.Len(t, failures.failures, 1)
	assert.Equal(t, 1, failures.failures[0].Attempts)
}

func TestWorker_DrainsQueueOnStop(t *testing.T) {
	writer := &fakeWriter{}
	failures := &fakeFailureSink{}
	q := NewQueue(10)
	w := newTestWorker(q, singleSite("store-a"), mappingFor("store-a", "WIDGET-1", 812, nil), failures, writer)

	q.Enqueue("WIDGET-1", 5)
	q.Enqueue("WIDGET-1", 6)
	q.Enqueue("WIDGET-1", 7)

	w.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	assert.Len(t, writer.productWrites, 3)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, "stopped", w.State())
}

func TestWorker_AppliesJobsInOrder(t *testing.T) {
	writer := &fakeWriter{}
	failures := &fakeFailureSink{}
	q := NewQueue(10)
	w := newTestWorker(q, singleSite("store-a"), mappingFor("store-a", "WIDGET-1", 812, nil), failures, writer)

	q.Enqueue("WIDGET-1", 5)
	q.Enqueue("WIDGET-1", 9)

	w.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	// FIFO: the later quantity is the one a site ends up with.
	require.Len(t, writer.productWrites, 2)
	assert.Equal(t, 5, writer.productWrites[0].qty)
	assert.Equal(t, 9, writer.productWrites[1].qty)
}

// gatedWriter blocks every write until release is closed, signalling each
// attempt on started.
type gatedWriter struct {
	started chan struct{}
	release chan struct{}
	calls   int
}

func (g *gatedWriter) SetProductStock(ctx context.Context, productID int64, qty int) error {
	g.calls++
	g.started <- struct{}{}
	<-g.release
	return nil
}

func (g *gatedWriter) SetVariationStock(ctx context.Context, productID, variationID int64, qty int) error {
	return nil
}

func TestWorker_StopTimeoutAbandonsDrain(t *testing.T) {
	writer := &gatedWriter{started: make(chan struct{}, 2), release: make(chan struct{})}
	failures := &fakeFailureSink{}
	q := NewQueue(10)
	w := newTestWorker(q, singleSite("store-a"), mappingFor("store-a", "WIDGET-1", 812, nil), failures, writer)

	w.Start(context.Background())
	q.Enqueue("WIDGET-1", 5)
	q.Enqueue("WIDGET-1", 6)

	// Wait until the first push is in flight, then ask for a stop the
	// blocked writer cannot honor in time.
	<-writer.started
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := w.Stop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Unblock the writer; the abandoned worker still finishes the drain.
	close(writer.release)
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish draining after writer unblocked")
	}

	assert.Equal(t, 2, writer.calls)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, "stopped", w.State())
}

type panicWriter struct{}

func (panicWriter) SetProductStock(context.Context, int64, int) error {
	panic("write exploded")
}

func (panicWriter) SetVariationStock(context.Context, int64, int64, int) error {
	panic("write exploded")
}

func TestWorker_PanicDoesNotKillWorker(t *testing.T) {
	good := &fakeWriter{}
	failures := &fakeFailureSink{}
	q := NewQueue(10)
	sites := singleSite("store-a")
	mappings := &fakeMappingSource{mappings: map[string]*model.SkuMapping{
		"store-a/BAD-1":  {SiteID: "store-a", SKU: "BAD-1", ProductID: 1},
		"store-a/GOOD-1": {SiteID: "store-a", SKU: "GOOD-1", ProductID: 2},
	}}
	jobs := 0
	writerFor := func(model.SiteConfig) StockWriter {
		jobs++
		if jobs == 1 {
			return panicWriter{}
		}
		return good
	}
	w := NewWorker(q, sites, mappings, failures, writerFor, 3, time.Millisecond)

	q.Enqueue("BAD-1", 5)
	q.Enqueue("GOOD-1", 6)

	w.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	require.Len(t, good.productWrites, 1)
	assert.Equal(t, stockWrite{productID: 2, qty: 6}, good.productWrites[0])
	assert.Equal(t, "stopped", w.State())
}

func TestWorker_StateTransitions(t *testing.T) {
	q := NewQueue(1)
	w := newTestWorker(q, singleSite("store-a"), &fakeMappingSource{}, &fakeFailureSink{}, &fakeWriter{})

	assert.Equal(t, "stopped", w.State())

	w.Start(context.Background())
	assert.Equal(t, "starting", w.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
	assert.Equal(t, "stopped", w.State())
}
