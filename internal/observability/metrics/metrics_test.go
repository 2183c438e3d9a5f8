package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAndExpose(t *testing.T) {
	m := New()

	m.ObserveHTTPRequest("/api/chat", http.MethodGet, 200, 120*time.Millisecond)
	m.ObserveHTTPRequest("/api/chat", http.MethodGet, 503, time.Millisecond)
	m.StreamEvent("agent")
	m.StreamEvent("agent")
	m.StreamEvent("completed")
	m.RunFinished("completed", 2*time.Second)
	m.PublishFailed()
	m.StreamOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.streamEvents.WithLabelValues("agent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpErrors.WithLabelValues("/api/chat", http.MethodGet)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeStreams))
	m.StreamClosed()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeStreams))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agentd_stream_events_total{event="agent"} 2`)
	assert.Contains(t, string(body), `agentd_http_requests_total{code="503",handler="/api/chat",method="GET"} 1`)
	assert.Contains(t, string(body), `agentd_events_publish_errors_total 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest("/", http.MethodGet, 200, time.Millisecond)
	m.StreamEvent("agent")
	m.RunFinished("failed", time.Second)
	m.PublishFailed()
	m.StreamOpened()
	m.StreamClosed()
	assert.Nil(t, m.Registry())
}

func TestMiddlewareLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/items/:id", http.MethodGet, "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("unmatched", http.MethodGet, "404")))
}

func TestStartServerRequiresAddress(t *testing.T) {
	assert.Error(t, StartServer(t.Context(), "", "", New().Handler()))
}
