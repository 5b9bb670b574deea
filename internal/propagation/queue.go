package propagation

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/skuledger/skuledger/internal/metrics"
	"github.com/skuledger/skuledger/internal/model"
)

// Queue is the bounded buffer between event intake and the propagation
// worker. Producers never block: the stock ledger already holds the truth,
// so a full queue sheds the job and the SKU converges again on the next
// event or an explicit refresh.
type Queue struct {
	jobs chan model.JobSnapshot
}

// NewQueue creates a queue holding at most capacity jobs.
func NewQueue(capacity int) *Queue {
	return &Queue{jobs: make(chan model.JobSnapshot, capacity)}
}

// Enqueue adds a propagation job without blocking. Returns false when the
// queue is full; the job is dropped and logged.
func (q *Queue) Enqueue(sku string, stockQuantity int) bool {
	job := model.JobSnapshot{
		SKU:           sku,
		StockQuantity: stockQuantity,
		EnqueuedAt:    time.Now().UTC(),
	}

	select {
	case q.jobs <- job:
		metrics.QueueEnqueues.Inc()
		metrics.QueueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		metrics.QueueDrops.Inc()
		log.Error().
			Str("sku", sku).
			Int("stock_quantity", stockQuantity).
			Msg("propagation queue full, job dropped")
		return false
	}
}

// Jobs is the receive side of the queue, consumed by the worker.
func (q *Queue) Jobs() <-chan model.JobSnapshot {
	return q.jobs
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.jobs)
}
