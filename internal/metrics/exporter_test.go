package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/beaver-dispatch/internal/queue"
)

type fakeStatsFetcher struct {
	stats map[string]queue.Stats
}

func (f fakeStatsFetcher) Stats(_ context.Context, machineType string) (queue.Stats, error) {
	return f.stats[machineType], nil
}

func TestExporterUpdateDoesNotPanic(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	fetcher := fakeStatsFetcher{stats: map[string]queue.Stats{
		"smithi": {Count: 4, Paused: false},
	}}

	exp := NewExporter(collector, fetcher, time.Second, nil)
	require.NotNil(t, exp)

	assert.NotPanics(t, func() {
		exp.Update(context.Background())
	})
}

func TestExporterLoopStopsOnContextCancel(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()
	fetcher := fakeStatsFetcher{stats: map[string]queue.Stats{}}

	exp := NewExporter(collector, fetcher, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exp.Loop(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not stop after context cancellation")
	}
}
