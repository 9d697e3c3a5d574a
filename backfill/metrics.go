package backfill

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var backfillTasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
	Name: "backfill_tasks_enqueued_total",
	Help: "The total number of backfill batch tasks enqueued",
})

var backfillBatchesProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "backfill_batches_processed_total",
	Help: "The total number of backfill batches processed",
})

var backfillBatchErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "backfill_batch_errors_total",
	Help: "The total number of backfill batches which failed and were retried",
})

var backfillRecordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "backfill_records_processed_total",
	Help: "The total number of backfill records moderated, by action",
}, []string{"action"})

var backfillRecordsFailed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "backfill_records_failed_total",
	Help: "The total number of backfill records which failed moderation",
})

var backfillCursorResets = promauto.NewCounter(prometheus.CounterOpts{
	Name: "backfill_cursor_resets_total",
	Help: "The number of times a backfill scan restarted because its cursor record was deleted",
})

var backfillState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "backfill_state",
	Help: "Current backfill state (1 for the active state)",
}, []string{"state"})
