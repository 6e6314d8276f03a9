// Package metrics collects bridge runtime metrics via
// github.com/prometheus/client_golang.
package metrics

import (
	"net/http"
	"time"
)

// Collector is the interface the rest of the bridge depends on, so a
// NullCollector can stand in for tests or a disabled metrics port.
type Collector interface {
	IncFramesDecoded(topic string)
	IncFramesRejected(topic, reason string)
	IncAuthStage(stage string, success bool)
	IncReconnectAttempt(tier string)
	IncMQTTPublish(direction string)
	SetDispatcherQueueDepth(account string, depth int)
	ObserveAuthStageDuration(stage string, d time.Duration)

	// Handler returns the Prometheus exposition HTTP handler, or nil if
	// this collector does not serve one (NullCollector).
	Handler() http.Handler
}
