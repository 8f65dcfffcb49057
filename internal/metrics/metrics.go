// Package metrics exports gateway occupancy and latency to Prometheus.
//
// Collectors are package-level and registered once. Recorder adapts them to
// the hook interfaces of the worker pool, the dispatcher and the device
// registry.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/dispatch"
)

const namespace = "dronegw"

var (
	workersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "active",
			Help:      "Device operations currently running on the worker pool.",
		},
	)
	workersQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queued",
			Help:      "Device operations waiting for a free worker.",
		},
	)
	queueWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_wait_seconds",
			Help:      "Time operations spent queued before a worker picked them up.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)
	operationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "operation_failures_total",
			Help:      "Operations that returned an error or panicked.",
		},
	)
	deviceOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "operation_duration_seconds",
			Help:      "Duration of successful device operations, including lock wait.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 3, 5, 10},
		},
		[]string{"kind", "op"},
	)
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "requests_total",
			Help:      "Requests answered by the dispatcher.",
		},
		[]string{"resource", "action", "code"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "request_duration_seconds",
			Help:      "Time from a request entering the dispatcher to its response.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 3, 5, 10, 30},
		},
		[]string{"resource", "action"},
	)
)

var registerMetrics sync.Once

// Register registers every collector with reg. Only the first call has an
// effect.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(
			workersActive,
			workersQueued,
			queueWait,
			operationFailures,
			deviceOperationDuration,
			requestsTotal,
			requestDuration,
		)
	})
}

// Recorder feeds the collectors. It satisfies worker.Recorder,
// dispatch.Recorder and device.Observer.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Queued implements worker.Recorder.
func (*Recorder) Queued(depth int) {
	workersQueued.Set(float64(depth))
}

// Started implements worker.Recorder.
func (*Recorder) Started(active int, waited time.Duration) {
	workersActive.Set(float64(active))
	queueWait.Observe(waited.Seconds())
}

// Finished implements worker.Recorder.
func (*Recorder) Finished(active int, _ time.Duration, err error) {
	workersActive.Set(float64(active))
	if err != nil {
		operationFailures.Inc()
	}
}

// Request implements dispatch.Recorder.
func (*Recorder) Request(resource string, action dispatch.Action, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(resource, string(action), strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(resource, string(action)).Observe(elapsed.Seconds())
}

// DeviceEvent implements device.Observer.
func (*Recorder) DeviceEvent(ev device.Event) {
	deviceOperationDuration.WithLabelValues(string(ev.Ref.Kind), string(ev.Op)).Observe(ev.Duration.Seconds())
}
