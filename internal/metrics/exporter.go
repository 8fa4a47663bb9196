package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/ChuLiYu/beaver-dispatch/internal/fleet"
	"github.com/ChuLiYu/beaver-dispatch/internal/queue"
)

// StatsFetcher reports queue length/pause state for one machine class. It is
// satisfied by queue.ReportHTTPBackend, which both backends delegate to for
// Stats since beanstalkd itself tracks neither.
type StatsFetcher interface {
	Stats(ctx context.Context, machineType string) (queue.Stats, error)
}

// Exporter runs the fleet-observation publish loop.
//
// Grounded on original_source/teuthology/exporter.py's
// TeuthologyMetrics.loop: publish, then sleep for (interval - elapsed) so
// metrics land close to period boundaries rather than interval-after-last-
// update; a negative elapsed (clock stepped backwards) doubles the next
// interval instead of sleeping a negative duration.
type Exporter struct {
	Collector *Collector
	Stats     StatsFetcher
	Interval  time.Duration
	Log       *slog.Logger
}

// NewExporter builds an Exporter that scans local processes via
// internal/fleet and reads queue stats via statsFetcher.
func NewExporter(collector *Collector, statsFetcher StatsFetcher, interval time.Duration, log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{
		Collector: collector,
		Stats:     statsFetcher,
		Interval:  interval,
		Log:       log,
	}
}

// Update performs one scan-and-publish pass.
func (e *Exporter) Update(ctx context.Context) {
	byClass, err := fleet.Scan()
	if err != nil {
		e.Log.Error("failed to scan dispatcher processes", "error", err)
		return
	}

	counts := fleet.CountDispatchers(byClass)
	for machineType, count := range counts {
		e.Collector.SetDispatcherCount(machineType, count)

		if e.Stats == nil {
			continue
		}
		stats, err := e.Stats.Stats(ctx, machineType)
		if err != nil {
			e.Log.Error("failed to fetch queue stats", "machine_type", machineType, "error", err)
			continue
		}
		e.Collector.SetQueueStats(machineType, stats.Count, stats.Paused)
	}
}

// Loop publishes metrics at Interval boundaries until ctx is canceled.
func (e *Exporter) Loop(ctx context.Context) {
	e.Log.Info("starting dispatcher metrics exporter")
	interval := e.Interval

	for {
		select {
		case <-ctx.Done():
			e.Log.Info("stopping")
			return
		default:
		}

		before := time.Now()
		e.Update(ctx)

		elapsed := time.Since(before)
		sleepFor := interval
		if elapsed < 0 {
			// Clock stepped backwards mid-update: widen the next window
			// rather than risk a tight loop.
			sleepFor *= 2
		} else {
			sleepFor -= elapsed
		}
		if sleepFor < 0 {
			sleepFor = 0
		}

		select {
		case <-ctx.Done():
			e.Log.Info("stopping")
			return
		case <-time.After(sleepFor):
		}
	}
}
