package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"commetrics-server/pkg/communication"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initForTest(t *testing.T) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	Init(logger)
	EnableMetrics(true)
}

func TestRecordHelpers(t *testing.T) {
	initForTest(t)

	before := testutil.ToFloat64(ReportsTotal.WithLabelValues("summary", "success"))
	RecordReport("summary", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(ReportsTotal.WithLabelValues("summary", "success")))

	before = testutil.ToFloat64(CacheRequests.WithLabelValues("hit"))
	RecordCacheRequest("hit")
	RecordCacheRequest("hit")
	assert.Equal(t, before+2, testutil.ToFloat64(CacheRequests.WithLabelValues("hit")))

	SetAMQPConnectionStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(AMQPConnectionStatus))
	SetAMQPConnectionStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(AMQPConnectionStatus))
}

func TestDisabledMetricsAreNoops(t *testing.T) {
	initForTest(t)
	EnableMetrics(false)
	defer EnableMetrics(true)

	before := testutil.ToFloat64(DigestRuns.WithLabelValues("success"))
	RecordDigestRun("success")
	ObserveReportDuration("interruptions")()
	assert.Equal(t, before, testutil.ToFloat64(DigestRuns.WithLabelValues("success")))
}

func TestEngineObserver(t *testing.T) {
	initForTest(t)

	counter := CallsAnalyzed.WithLabelValues(communication.AnalyzerInterruptions, string(communication.OutcomeMalformed))
	before := testutil.ToFloat64(counter)

	EngineObserver{}.ObserveCall(communication.AnalyzerInterruptions, communication.OutcomeMalformed)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHandlerServesRegistry(t *testing.T) {
	initForTest(t)
	RecordAlertPublish("amqp", "success")

	mux := http.NewServeMux()
	RegisterHandler(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "commetrics_alerts_published_total")
}
