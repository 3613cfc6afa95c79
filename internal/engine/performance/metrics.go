package performance

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"discord-automod/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "automod_event_duration_sec",
	Help:    "Duration of automod evaluation per content target",
	Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
}, []string{"target"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_events_processed",
	Help: "Number of content events evaluated",
}, []string{"target"})

var eventDroppedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_events_dropped",
	Help: "Number of gateway events dropped before evaluation",
}, []string{"reason"})

var ruleMatchCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_rule_matches",
	Help: "Number of rule matches by target",
}, []string{"target"})

var patternFaultCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_pattern_faults",
	Help: "Number of pattern timeouts and compile failures",
}, []string{"kind"})

var actionPlannedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_actions_planned",
	Help: "Number of planned enforcement steps",
}, []string{"action"})

var actionExecutedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_actions_executed",
	Help: "Number of executed enforcement steps by outcome",
}, []string{"action", "outcome"})

var actionExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "automod_action_duration_sec",
	Help: "Duration of enforcement step execution",
})

var escalationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_escalations",
	Help: "Number of threshold escalations fired",
}, []string{"action"})

var pointsAdded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_points_added",
	Help: "Total infraction points recorded",
})

var ledgerErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_ledger_errors",
	Help: "Number of evaluations whose ledger write failed",
})

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_cache_lookups",
	Help: "Snapshot cache lookups by layer and result",
}, []string{"layer", "result"})

var executorQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_executor_queue_depth",
	Help: "Plans waiting for execution",
})

var ingestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_ingest_queue_depth",
	Help: "Gateway batches waiting for evaluation",
})

var restDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "automod_discord_rest_duration_sec",
	Help:    "Duration of Discord REST calls by status class",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
}, []string{"status"})

var gatewayLatency = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_gateway_heartbeat_latency_sec",
	Help: "Last observed gateway heartbeat latency",
})

var goroutines = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_goroutines",
	Help: "Current goroutine count",
})

var heapAlloc = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_heap_alloc_bytes",
	Help: "Bytes of allocated heap objects",
})

// RecordEvaluation records one evaluated content event
func RecordEvaluation(target models.Target, d time.Duration, matches int) {
	eventProcessDuration.WithLabelValues(string(target)).Observe(d.Seconds())
	eventProcessCount.WithLabelValues(string(target)).Inc()
	if matches > 0 {
		ruleMatchCount.WithLabelValues(string(target)).Add(float64(matches))
	}
}

func RecordDropped(reason string) {
	eventDroppedCount.WithLabelValues(reason).Inc()
}

func RecordFault(kind models.FaultKind) {
	patternFaultCount.WithLabelValues(string(kind)).Inc()
}

// RecordPlan counts the steps of a finished plan
func RecordPlan(plan *models.Plan) {
	if plan == nil {
		return
	}
	for _, s := range plan.Steps {
		actionPlannedCount.WithLabelValues(string(s.Action)).Inc()
		if s.Escalation != nil {
			escalationCount.WithLabelValues(string(s.Action)).Inc()
		}
	}
	if plan.PointsAdded > 0 {
		pointsAdded.Add(float64(plan.PointsAdded))
	}
}

func RecordLedgerError() {
	ledgerErrorCount.Inc()
}

// RecordExecution records a step execution with timing
func RecordExecution(action models.Action, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	actionExecutedCount.WithLabelValues(string(action), outcome).Inc()
	actionExecutionDuration.Observe(d.Seconds())
}

func RecordCacheLookup(layer string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(layer, result).Inc()
}

func SetQueueDepth(n int) {
	executorQueueDepth.Set(float64(n))
}

func SetIngestDepth(n int) {
	ingestQueueDepth.Set(float64(n))
}

// RecordREST records one Discord REST round trip. status is the HTTP status
// class ("2xx", "4xx", ...) or "error" when no response arrived.
func RecordREST(status string, d time.Duration) {
	restDuration.WithLabelValues(status).Observe(d.Seconds())
}

func SetGatewayLatency(d time.Duration) {
	gatewayLatency.Set(d.Seconds())
}

// UpdateSystemMetrics updates runtime system metrics
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	goroutines.Set(float64(runtime.NumGoroutine()))
	heapAlloc.Set(float64(m.Alloc))
}

// StartPeriodicMetrics refreshes the runtime gauges until ctx is done
func StartPeriodicMetrics(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				UpdateSystemMetrics()
			}
		}
	}()
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}
