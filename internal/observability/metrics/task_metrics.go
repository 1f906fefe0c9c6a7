package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TaskMetrics instruments the verification task pipeline.
type TaskMetrics struct {
	pickupLag     *prometheus.HistogramVec
	backlog       *prometheus.GaugeVec
	processed     *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
}

var (
	taskMetricsOnce sync.Once
	taskMetrics     *TaskMetrics
)

// Tasks returns the process-wide task metrics, registering them on first
// use.
func Tasks() *TaskMetrics {
	return TasksWithConfig(Config{})
}

func TasksWithConfig(cfg Config) *TaskMetrics {
	taskMetricsOnce.Do(func() {
		taskMetrics = newTaskMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return taskMetrics
}

func ResetTaskMetricsForTest() {
	taskMetricsOnce = sync.Once{}
	taskMetrics = nil
}

func newTaskMetrics(registerer prometheus.Registerer, cfg Config) *TaskMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "spotgenius-connect"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}

	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	pickupLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sgconnect_task_pickup_lag_seconds",
			Help: "Lag between a task's next_at and the scheduler picking it up.",
			Buckets: []float64{
				1,
				5,
				15,
				60,   // 1m
				300,  // 5m
				1200, // 20m, the default grace period
				3600, // 1h
			},
			ConstLabels: constLabels,
		},
		[]string{"feature"},
	)

	backlog := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "sgconnect_task_backlog_total",
			Help:        "Number of tasks by status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)

	processed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "sgconnect_task_processed_total",
			Help:        "Total tasks run by the scheduler.",
			ConstLabels: constLabels,
		},
		[]string{"feature", "result"}, // success | failed
	)

	providerCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "sgconnect_provider_calls_total",
			Help:        "Provider endpoint calls by transport and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"transport", "result"}, // ok | error | empty
	)

	registerer.MustRegister(
		pickupLag,
		backlog,
		processed,
		providerCalls,
	)

	return &TaskMetrics{
		pickupLag:     pickupLag,
		backlog:       backlog,
		processed:     processed,
		providerCalls: providerCalls,
	}
}

// ObservePickupLag records how far past due a task was when claimed.
func (m *TaskMetrics) ObservePickupLag(feature string, lag time.Duration) {
	if m == nil || lag < 0 {
		return
	}
	m.pickupLag.WithLabelValues(feature).Observe(lag.Seconds())
}

// SetBacklog publishes the task count for one status.
func (m *TaskMetrics) SetBacklog(status string, count float64) {
	if m == nil {
		return
	}
	m.backlog.WithLabelValues(status).Set(count)
}

// IncProcessed counts one scheduler run of a task.
func (m *TaskMetrics) IncProcessed(feature, result string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(feature, result).Inc()
}

// IncProviderCall counts one provider endpoint call.
func (m *TaskMetrics) IncProviderCall(transport, result string) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(transport, result).Inc()
}
