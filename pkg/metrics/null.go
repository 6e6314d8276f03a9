package metrics

import (
	"net/http"
	"time"
)

// NullCollector is a zero-overhead no-op Collector, used when metrics
// are disabled or in tests that don't care about observability.
type NullCollector struct{}

func (NullCollector) IncFramesDecoded(string)                      {}
func (NullCollector) IncFramesRejected(string, string)              {}
func (NullCollector) IncAuthStage(string, bool)                     {}
func (NullCollector) IncReconnectAttempt(string)                    {}
func (NullCollector) IncMQTTPublish(string)                         {}
func (NullCollector) SetDispatcherQueueDepth(string, int)           {}
func (NullCollector) ObserveAuthStageDuration(string, time.Duration) {}
func (NullCollector) Handler() http.Handler                         { return nil }

var _ Collector = NullCollector{}
