package sync

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	syncTracer = otel.Tracer("florin/sync")
	syncMeter  = otel.Meter("florin/sync")

	syncDuration, _ = syncMeter.Float64Histogram("sync.duration",
		metric.WithDescription("Sync run duration in seconds"), metric.WithUnit("s"))
	syncRecords, _ = syncMeter.Int64Counter("sync.records.total",
		metric.WithDescription("Transaction records reconciled, by change type"))
	syncItemFailures, _ = syncMeter.Int64Counter("sync.item.failures",
		metric.WithDescription("Linked items whose sync failed"))
	syncLockContention, _ = syncMeter.Int64Counter("sync.lock.contention",
		metric.WithDescription("Sync attempts rejected by a held lock"))
)
