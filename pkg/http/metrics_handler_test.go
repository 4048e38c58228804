package http

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"commetrics-server/pkg/access"
	"commetrics-server/pkg/communication"
	"commetrics-server/pkg/database"
	"commetrics-server/pkg/errors"
	"commetrics-server/pkg/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	result  interface{}
	err     error
	queries []report.Query
}

func (g *stubGenerator) Generate(ctx context.Context, q report.Query) (interface{}, error) {
	g.queries = append(g.queries, q)
	return g.result, g.err
}

func serveReport(t *testing.T, g *stubGenerator, method, target string, scope access.Scope) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewCommunicationMetricsHandler(quietLogger(), g)
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(access.WithScope(req.Context(), scope))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCommunicationMetrics_PassesQuery(t *testing.T) {
	g := &stubGenerator{result: &communication.SummaryReport{
		Managers:   []communication.SummaryManager{},
		PeriodDays: 7,
	}}
	scope := access.Scope{Departments: []string{"Sales"}}

	rec := serveReport(t, g, http.MethodGet,
		"/api/communication_metrics?type=summary&period=7&manager=Alice&department=Sales&date_from=2024-03-01&date_to=2024-03-07", scope)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"managers":[],"period_days":7}`, rec.Body.String())

	require.Len(t, g.queries, 1)
	q := g.queries[0]
	assert.Equal(t, "summary", q.Type)
	assert.Equal(t, 7, q.PeriodDays)
	assert.Equal(t, "Alice", q.Manager)
	assert.Equal(t, "Sales", q.Department)
	assert.Equal(t, "2024-03-01", q.DateFrom)
	assert.Equal(t, "2024-03-07", q.DateTo)
	assert.Equal(t, scope, q.Scope)
}

func TestCommunicationMetrics_Defaults(t *testing.T) {
	g := &stubGenerator{result: &communication.InterruptionReport{
		Managers: []communication.InterruptionManager{},
		Timeline: []communication.InterruptionTimelinePoint{},
	}}

	rec := serveReport(t, g, http.MethodGet, "/api/communication_metrics", access.Unrestricted())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"managers":[],"timeline":[]}`, rec.Body.String())
	assert.Equal(t, "", g.queries[0].Type)
	assert.Equal(t, 0, g.queries[0].PeriodDays)
}

func TestCommunicationMetrics_BadPeriod(t *testing.T) {
	for _, period := range []string{"week", "1.5", "0"} {
		t.Run(period, func(t *testing.T) {
			g := &stubGenerator{}
			rec := serveReport(t, g, http.MethodGet, "/api/communication_metrics?period="+period, access.Unrestricted())

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, g.queries)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "INVALID_PERIOD", body["code"])
		})
	}
}

func TestCommunicationMetrics_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid type", errors.NewInvalidReportType("sentiment"), http.StatusBadRequest},
		{"forbidden department", errors.NewDepartmentForbidden("Support"), http.StatusForbidden},
		{"data source down", errors.NewDataSourceUnavailable(stderrors.New("dial tcp: refused")), http.StatusServiceUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveReport(t, &stubGenerator{err: tt.err}, http.MethodGet, "/api/communication_metrics", access.Unrestricted())
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCommunicationMetrics_MethodNotAllowed(t *testing.T) {
	g := &stubGenerator{}
	rec := serveReport(t, g, http.MethodPost, "/api/communication_metrics", access.Unrestricted())

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
	assert.Empty(t, g.queries)
}

type failingSource struct{ err error }

func (f failingSource) ListDiarizedCalls(ctx context.Context, filter database.CallFilter) ([]communication.CallRecord, error) {
	return nil, f.err
}

func TestCommunicationMetrics_DataSourceFailureHidesDetails(t *testing.T) {
	driverErr := stderrors.New("Error 1045 (28000): Access denied for user 'commetrics'@'10.1.2.3' (using password: YES)")
	engine := communication.NewEngine(quietLogger(), communication.Options{Workers: 1})
	reports := report.NewService(failingSource{err: driverErr}, nil, engine, report.Defaults{
		PeriodDays:    30,
		MaxPeriodDays: 365,
		Location:      time.UTC,
	}, quietLogger())

	handler := NewCommunicationMetricsHandler(quietLogger(), reports)
	req := httptest.NewRequest(http.MethodGet, "/api/communication_metrics?type=summary", nil)
	req = req.WithContext(access.WithScope(req.Context(), access.Unrestricted()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Access denied")
	assert.NotContains(t, rec.Body.String(), "10.1.2.3")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DATA_SOURCE_UNAVAILABLE", body["code"])
	assert.NotContains(t, body, "context")
}
