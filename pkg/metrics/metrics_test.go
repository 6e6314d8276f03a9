package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusCollectorCountersObservableViaHandler(t *testing.T) {
	c := NewPrometheusCollector()

	c.IncFramesDecoded("client/04")
	c.IncFramesDecoded("client/04")
	c.IncFramesRejected("client/data", "bad_crc")
	c.IncAuthStage("login", true)
	c.IncAuthStage("login", false)
	c.IncReconnectAttempt("full_reauth")
	c.IncMQTTPublish("cloud")
	c.SetDispatcherQueueDepth("acct-1", 3)
	c.ObserveAuthStageDuration("mqtt_token", 250*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		`fossibot_bridge_frames_decoded_total{topic="client/04"} 2`,
		`fossibot_bridge_frames_rejected_total{reason="bad_crc",topic="client/data"} 1`,
		`fossibot_bridge_auth_stage_total{outcome="success",stage="login"} 1`,
		`fossibot_bridge_auth_stage_total{outcome="failure",stage="login"} 1`,
		`fossibot_bridge_reconnect_attempts_total{tier="full_reauth"} 1`,
		`fossibot_bridge_mqtt_publishes_total{direction="cloud"} 1`,
		`fossibot_bridge_dispatcher_queue_depth{account="acct-1"} 3`,
		`fossibot_bridge_auth_stage_duration_seconds`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected exposition body to contain %q, got:\n%s", want, body)
		}
	}
}

func TestPrometheusCollectorsAreIndependent(t *testing.T) {
	a := NewPrometheusCollector()
	b := NewPrometheusCollector()

	a.IncMQTTPublish("cloud")

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "fossibot_bridge_mqtt_publishes_total") {
		t.Fatal("expected separate PrometheusCollector instances to use independent registries")
	}
}

func TestNullCollectorMethodsAreSafeNoops(t *testing.T) {
	var c Collector = NullCollector{}

	c.IncFramesDecoded("client/04")
	c.IncFramesRejected("client/data", "bad_crc")
	c.IncAuthStage("login", true)
	c.IncReconnectAttempt("simple")
	c.IncMQTTPublish("local")
	c.SetDispatcherQueueDepth("acct-1", 1)
	c.ObserveAuthStageDuration("login", time.Millisecond)

	if c.Handler() != nil {
		t.Fatal("expected NullCollector.Handler() to return nil")
	}
}
