package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector is the production Collector backed by real
// Prometheus metric types (counters for frames/auth/reconnects/
// publishes, a gauge for per-account queue depth, a histogram for auth
// stage latency).
type PrometheusCollector struct {
	registry *prometheus.Registry

	framesDecoded  *prometheus.CounterVec
	framesRejected *prometheus.CounterVec
	authStage      *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	mqttPublishes  *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	authDuration   *prometheus.HistogramVec
}

// NewPrometheusCollector builds a Collector registered on a fresh
// registry (not the global default, so multiple bridge instances in one
// test binary never collide).
func NewPrometheusCollector() *PrometheusCollector {
	reg := prometheus.NewRegistry()

	c := &PrometheusCollector{
		registry: reg,
		framesDecoded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fossibot_bridge_frames_decoded_total",
			Help: "Total Modbus frames successfully decoded, by cloud response topic.",
		}, []string{"topic"}),
		framesRejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fossibot_bridge_frames_rejected_total",
			Help: "Total Modbus frames rejected, by topic and rejection reason.",
		}, []string{"topic", "reason"}),
		authStage: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fossibot_bridge_auth_stage_total",
			Help: "Total cloud-authenticator stage calls, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		reconnects: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fossibot_bridge_reconnect_attempts_total",
			Help: "Total reconnect attempts, by tier.",
		}, []string{"tier"}),
		mqttPublishes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "fossibot_bridge_mqtt_publishes_total",
			Help: "Total MQTT publishes, by direction (cloud|local).",
		}, []string{"direction"}),
		queueDepth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "fossibot_bridge_dispatcher_queue_depth",
			Help: "Current command-dispatcher queue depth, by account.",
		}, []string{"account"}),
		authDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fossibot_bridge_auth_stage_duration_seconds",
			Help:    "Cloud-authenticator stage call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	return c
}

func (c *PrometheusCollector) IncFramesDecoded(topic string) {
	c.framesDecoded.WithLabelValues(topic).Inc()
}

func (c *PrometheusCollector) IncFramesRejected(topic, reason string) {
	c.framesRejected.WithLabelValues(topic, reason).Inc()
}

func (c *PrometheusCollector) IncAuthStage(stage string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.authStage.WithLabelValues(stage, outcome).Inc()
}

func (c *PrometheusCollector) IncReconnectAttempt(tier string) {
	c.reconnects.WithLabelValues(tier).Inc()
}

func (c *PrometheusCollector) IncMQTTPublish(direction string) {
	c.mqttPublishes.WithLabelValues(direction).Inc()
}

func (c *PrometheusCollector) SetDispatcherQueueDepth(account string, depth int) {
	c.queueDepth.WithLabelValues(account).Set(float64(depth))
}

func (c *PrometheusCollector) ObserveAuthStageDuration(stage string, d time.Duration) {
	c.authDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var _ Collector = (*PrometheusCollector)(nil)
