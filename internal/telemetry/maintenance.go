package telemetry

import (
	"context"
	"time"
)

// defaultPruneInterval is how often RunRetention prunes.
const defaultPruneInterval = time.Hour

// RunRetention prunes history older than retention once at start and then
// every interval until ctx ends. A zero interval selects one hour.
func RunRetention(ctx context.Context, repo HistoryRepository, retention, interval time.Duration, logger Logger) {
	logger = orNoop(logger)
	if interval <= 0 {
		interval = defaultPruneInterval
	}

	prune := func() {
		n, err := repo.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("history prune failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("history pruned", "deleted", n, "retention", retention.String())
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prune()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// PointWriter is the part of the InfluxDB client the stats reporter needs.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// MeasurementGatewayStats is the measurement gateway stats are written to.
const MeasurementGatewayStats = "gateway_stats"

// StatsFunc returns the gateway counters to export, keyed by field name.
type StatsFunc func() map[string]interface{}

// RunStatsReporter writes stats to w every interval until ctx ends.
func RunStatsReporter(ctx context.Context, w PointWriter, host string, interval time.Duration, stats StatsFunc) {
	if interval <= 0 {
		interval = defaultStatsInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.WritePoint(MeasurementGatewayStats, map[string]string{"host": host}, stats())
		}
	}
}

const defaultStatsInterval = 10 * time.Second
