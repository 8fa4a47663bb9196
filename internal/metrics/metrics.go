// Package metrics collects and exposes the dispatcher fleet's Prometheus
// metrics and runs the exporter's publish loop.
//
// Grounded on original_source/teuthology/exporter.py's TeuthologyMetrics
// class and loop() (port 61764, GaugeVec keyed by machine_type, elapsed-aware
// "publish at boundaries" sleep) and on this module's own metrics.go for the
// Collector/StartServer shape (prometheus.NewGaugeVec, MustRegister,
// promhttp.Handler).
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Port is the fixed exporter port, unchanged from the original source. It
// spells "teuth" through a digit cipher, per the comment it carried: each
// letter's (code point - 100) mod 10 gives 6, 1, 7, 6, 4.
const Port = 61764

// Collector holds the gauges the exporter publishes, all labeled by
// machine_type since a single exporter observes an entire fleet.
type Collector struct {
	dispatcherCount      *prometheus.GaugeVec
	beanstalkQueueLength *prometheus.GaugeVec
	beanstalkQueuePaused *prometheus.GaugeVec
}

// NewCollector constructs and registers the gauges against the default
// Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		dispatcherCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatcher_count",
			Help: "Dispatcher Count",
		}, []string{"machine_type"}),
		beanstalkQueueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beanstalk_queue_length",
			Help: "Beanstalk Queue Length",
		}, []string{"machine_type"}),
		beanstalkQueuePaused: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "beanstalk_queue_paused",
			Help: "Whether the beanstalk queue for a machine type is paused",
		}, []string{"machine_type"}),
	}

	prometheus.MustRegister(c.dispatcherCount)
	prometheus.MustRegister(c.beanstalkQueueLength)
	prometheus.MustRegister(c.beanstalkQueuePaused)

	return c
}

// SetDispatcherCount publishes the live dispatcher count observed for machineType.
func (c *Collector) SetDispatcherCount(machineType string, count int) {
	c.dispatcherCount.WithLabelValues(machineType).Set(float64(count))
}

// SetQueueStats publishes the queue length and pause state observed for machineType.
func (c *Collector) SetQueueStats(machineType string, length int, paused bool) {
	c.beanstalkQueueLength.WithLabelValues(machineType).Set(float64(length))
	pausedVal := 0.0
	if paused {
		pausedVal = 1.0
	}
	c.beanstalkQueuePaused.WithLabelValues(machineType).Set(pausedVal)
}

// StartServer starts the Prometheus metrics HTTP server. It blocks until the
// server errors out or is shut down by the caller closing the listener.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
