package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corridor_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	admissionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corridor_admissions_total",
		Help: "Airplanes admitted by the scheduler.",
	})

	admissionShifts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "corridor_admission_shifts",
		Help:    "Scheduling shifts applied per admitted airplane.",
		Buckets: []float64{0, 1, 5, 10, 60, 300, 900, 1800, 3600},
	})

	admissionDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "corridor_admission_duration_seconds",
		Help:    "Time spent scheduling one airplane.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	schedulingTimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corridor_scheduling_timeouts_total",
		Help: "Admissions rejected because no collision-free slot was found.",
	})

	registrySize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "corridor_registry_airplanes",
		Help: "Airplanes currently registered.",
	})

	airborneAirplanes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "corridor_airborne_airplanes",
		Help: "Airplanes airborne as of the last tick.",
	})

	advanceDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "corridor_advance_duration_seconds",
		Help:    "Time spent broadcasting one tick to all airplanes.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	invalidTimeErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corridor_invalid_time_errors_total",
		Help: "Per-airplane tick failures caused by time moving backwards.",
	})

	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corridor_clock_ticks_total",
		Help: "Clock ticks driven into the control center.",
	})

	historyHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corridor_history_hits_total",
		Help: "Snapshot history lookups that found an entry.",
	})

	historyMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corridor_history_misses_total",
		Help: "Snapshot history lookups that found nothing.",
	})

	historyEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "corridor_history_entries",
		Help: "Snapshots currently held in history.",
	})

	forecastDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "corridor_forecast_duration_seconds",
		Help:    "Time spent generating a forecast.",
		Buckets: prometheus.DefBuckets,
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_stream_connections_total",
			Help: "Stream connection events.",
		},
		[]string{"transport", "event"},
	)

	streamsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corridor_streams_active",
			Help: "Currently open position streams.",
		},
		[]string{"transport"},
	)

	streamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_stream_messages_total",
			Help: "Messages pushed to stream clients.",
		},
		[]string{"transport"},
	)

	streamBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_stream_bytes_total",
			Help: "Bytes pushed to stream clients.",
		},
		[]string{"transport"},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corridor_stream_errors_total",
			Help: "Stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		admissionsTotal,
		admissionShifts,
		admissionDurationSeconds,
		schedulingTimeoutsTotal,
		registrySize,
		airborneAirplanes,
		advanceDurationSeconds,
		invalidTimeErrorsTotal,
		ticksTotal,
		historyHitsTotal,
		historyMissesTotal,
		historyEntries,
		forecastDurationSeconds,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAdmission records one admitted airplane.
func RecordAdmission(shifts int, d time.Duration) {
	admissionsTotal.Inc()
	admissionShifts.Observe(float64(shifts))
	admissionDurationSeconds.Observe(d.Seconds())
}

func IncSchedulingTimeouts() { schedulingTimeoutsTotal.Inc() }
func SetRegistrySize(n int) { registrySize.Set(float64(n)) }
func IncTicks() { ticksTotal.Inc() }
func IncHistoryHits() { historyHitsTotal.Inc() }
func IncHistoryMisses() { historyMissesTotal.Inc() }
func SetHistoryEntries(n int) { historyEntries.Set(float64(n)) }

// ObserveAdvance records one broadcast.
func ObserveAdvance(d time.Duration, airborne, failures int) {
	advanceDurationSeconds.Observe(d.Seconds())
	airborneAirplanes.Set(float64(airborne))
	if failures > 0 {
		invalidTimeErrorsTotal.Add(float64(failures))
	}
}

func ObserveForecast(d time.Duration) {
	forecastDurationSeconds.Observe(d.Seconds())
}

func IncStreamConnections(transport, event string) {
	streamConnectionsTotal.WithLabelValues(transport, event).Inc()
}

func IncStreamsActive(transport string) { streamsActive.WithLabelValues(transport).Inc() }
func DecStreamsActive(transport string) { streamsActive.WithLabelValues(transport).Dec() }

// AddStreamMessage counts one message of n bytes.
func AddStreamMessage(transport string, n int) {
	streamMessagesTotal.WithLabelValues(transport).Inc()
	streamBytesTotal.WithLabelValues(transport).Add(float64(n))
}

func AddStreamBytes(transport string, n int) {
	streamBytesTotal.WithLabelValues(transport).Add(float64(n))
}

func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// knownRoutes are the fixed paths that get their own label.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/airplanes":        true,
	"/api/v1/airplanes/check":  true,
	"/api/v1/positions":        true,
	"/api/v1/advance":          true,
	"/api/v1/grid":             true,
	"/api/v1/forecast":         true,
	"/api/v1/history/stats":    true,
	"/api/v1/stream/positions": true,
	"/api/v1/ws/positions":     true,
}

// normalizeRoute maps a request path to a bounded label set so that ids in paths
// and scanner noise do not blow up series cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/airplanes/"); ok {
		if _, err := strconv.Atoi(rest); err == nil {
			return "/api/v1/airplanes/{id}"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer (flush, deadlines).
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Flush() {
	http.NewResponseController(rw.ResponseWriter).Flush()
}

// Hijack hands the connection to websocket upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rw.statusCode = http.StatusSwitchingProtocols
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
