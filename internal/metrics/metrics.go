package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signage_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_activation_ticks_total",
			Help: "Activation loop ticks by outcome",
		},
		[]string{"outcome"},
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signage_activation_tick_duration_seconds",
			Help:    "Time spent in one activation tick",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30},
		},
	)

	activationSwitches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signage_activation_switches_total",
			Help: "Number of times a new schedule took over playback",
		},
	)

	candidatesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signage_activation_candidates",
			Help: "Schedules eligible at the last tick",
		},
	)

	postActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_post_actions_total",
			Help: "Post-actions run at window close",
		},
		[]string{"action", "status"},
	)

	playerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_player_errors_total",
			Help: "Failed player control calls",
		},
		[]string{"action"},
	)

	schedulesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "signage_schedules",
			Help: "Stored schedules by enabled state",
		},
		[]string{"enabled"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency by route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func RecordTick(outcome string, duration time.Duration, candidates int) {
	ticksTotal.WithLabelValues(outcome).Inc()
	tickDuration.Observe(duration.Seconds())
	candidatesGauge.Set(float64(candidates))
}

func RecordSwitch() {
	activationSwitches.Inc()
}

func RecordPostAction(action string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	postActionsTotal.WithLabelValues(action, status).Inc()
}

func RecordPlayerError(action string) {
	playerErrors.WithLabelValues(action).Inc()
}

func UpdateScheduleStats(enabled, disabled int) {
	schedulesGauge.WithLabelValues("true").Set(float64(enabled))
	schedulesGauge.WithLabelValues("false").Set(float64(disabled))
}
