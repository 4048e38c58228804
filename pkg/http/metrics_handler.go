package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"commetrics-server/pkg/access"
	"commetrics-server/pkg/correlation"
	"commetrics-server/pkg/errors"
	"commetrics-server/pkg/report"

	"github.com/sirupsen/logrus"
)

// CommunicationMetricsPath is where reports are served
const CommunicationMetricsPath = "/api/communication_metrics"

// ReportGenerator builds a report for a query
type ReportGenerator interface {
	Generate(ctx context.Context, q report.Query) (interface{}, error)
}

// CommunicationMetricsHandler serves interruption, talk/listen and summary reports
type CommunicationMetricsHandler struct {
	logger  *logrus.Logger
	reports ReportGenerator
}

// NewCommunicationMetricsHandler creates a new report handler
func NewCommunicationMetricsHandler(logger *logrus.Logger, reports ReportGenerator) *CommunicationMetricsHandler {
	return &CommunicationMetricsHandler{
		logger:  logger,
		reports: reports,
	}
}

// RegisterHandlers registers the report endpoint behind the access middleware
func (h *CommunicationMetricsHandler) RegisterHandlers(server *Server) {
	server.RegisterProtectedHandler(CommunicationMetricsPath, h.ServeHTTP)
}

func (h *CommunicationMetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	log := correlation.LoggerFromContext(r.Context(), h.logger)

	q, err := parseReportQuery(r)
	if err != nil {
		log.WithError(err).WithField("code", errors.GetErrorCode(err)).Debug("Rejected report query")
		errors.WriteError(w, err)
		return
	}

	result, err := h.reports.Generate(r.Context(), q)
	if err != nil {
		status := errors.HTTPStatusFromError(err)
		entry := log.WithError(err).WithFields(logrus.Fields{
			"status": status,
			"code":   errors.GetErrorCode(err),
		})
		if status >= http.StatusInternalServerError {
			entry.Error("Report generation failed")
		} else {
			entry.Info("Report request rejected")
		}
		errors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseReportQuery(r *http.Request) (report.Query, error) {
	values := r.URL.Query()

	q := report.Query{
		Type:       values.Get("type"),
		DateFrom:   values.Get("date_from"),
		DateTo:     values.Get("date_to"),
		Manager:    values.Get("manager"),
		Department: values.Get("department"),
		Scope:      access.ScopeFromContext(r.Context()),
	}

	if raw := strings.TrimSpace(values.Get("period")); raw != "" {
		period, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.NewInvalidPeriod("period must be a whole number of days",
				map[string]interface{}{"period": raw})
		}
		if period == 0 {
			// zero would silently select the default period
			return q, errors.NewInvalidPeriod("period must be at least one day",
				map[string]interface{}{"period": raw})
		}
		q.PeriodDays = period
	}

	return q, nil
}
