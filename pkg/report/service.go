package report

import (
	"context"
	"fmt"
	"time"

	"commetrics-server/pkg/cache"
	"commetrics-server/pkg/communication"
	"commetrics-server/pkg/correlation"
	"commetrics-server/pkg/database"
	"commetrics-server/pkg/errors"
	"commetrics-server/pkg/metrics"
	"commetrics-server/pkg/telemetry/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CallSource yields the call rows for a report window
type CallSource interface {
	ListDiarizedCalls(ctx context.Context, filter database.CallFilter) ([]communication.CallRecord, error)
}

// Cache stores finished reports. Implementations may be unavailable at any
// time; failures only cost a regeneration.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
}

// Service turns report queries into engine output
type Service struct {
	source   CallSource
	cache    Cache
	engine   *communication.Engine
	defaults Defaults
	now      func() time.Time
	logger   *logrus.Logger
}

// NewService creates a report service. cache may be nil.
func NewService(source CallSource, cache Cache, engine *communication.Engine, defaults Defaults, logger *logrus.Logger) *Service {
	return &Service{
		source:   source,
		cache:    cache,
		engine:   engine,
		defaults: defaults,
		now:      time.Now,
		logger:   logger,
	}
}

// Generate produces the report described by q. The result is one of
// *communication.InterruptionReport, *communication.TalkListenReport or
// *communication.SummaryReport.
func (s *Service) Generate(ctx context.Context, q Query) (interface{}, error) {
	ctx, span := tracing.StartSpan(ctx, "report.generate", attribute.String("report.type", q.Type))
	result, err := s.generate(ctx, q)
	tracing.End(span, err)
	return result, err
}

func (s *Service) generate(ctx context.Context, q Query) (interface{}, error) {
	q, err := q.Normalize(s.now(), s.defaults)
	if err != nil {
		label := q.Type
		if !communication.ValidType(label) {
			label = "unknown"
		}
		metrics.RecordReport(label, "invalid")
		return nil, err
	}

	log := correlation.LoggerFromContext(ctx, s.logger).WithFields(logrus.Fields{
		"type":       q.Type,
		"from":       q.From.Format(dateLayout),
		"to":         q.To.Format(dateLayout),
		"manager":    q.Manager,
		"department": q.Department,
	})

	if q.Department != "" && !q.Scope.Allows(q.Department) {
		metrics.RecordReport(q.Type, "forbidden")
		return nil, errors.NewDepartmentForbidden(q.Department)
	}

	defer metrics.ObserveReportDuration(q.Type)()

	key := cache.Key(q.CacheKeyParts()...)
	if s.cache != nil {
		dest := newReport(q.Type)
		hit, err := s.cache.Get(ctx, key, dest)
		if err != nil {
			log.WithError(err).Warn("Report cache lookup failed")
		} else if hit {
			log.Debug("Serving cached report")
			trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("report.cache_hit", true))
			metrics.RecordReport(q.Type, "success")
			return dest, nil
		}
	}

	var calls []communication.CallRecord
	visible := q.Scope.VisibleDepartments()
	if visible == nil || len(visible) > 0 {
		calls, err = s.source.ListDiarizedCalls(ctx, database.CallFilter{
			From:        q.From,
			To:          q.To.AddDate(0, 0, 1),
			Manager:     q.Manager,
			Department:  q.Department,
			Departments: visible,
		})
		if err != nil {
			metrics.RecordReport(q.Type, "error")
			// the caller gave up; a deadline inside the data source is an outage
			if ctx.Err() != nil {
				return nil, fmt.Errorf("loading calls: %w", ctx.Err())
			}
			log.WithError(err).Error("Call data source failed")
			return nil, errors.NewDataSourceUnavailable(err)
		}
	}

	result, err := s.run(ctx, q, calls)
	if err != nil {
		metrics.RecordReport(q.Type, "error")
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result); err != nil {
			log.WithError(err).Warn("Failed to cache report")
		}
	}

	log.WithField("calls", len(calls)).Debug("Report generated")
	metrics.RecordReport(q.Type, "success")
	return result, nil
}

// Summary is Generate for type=summary with a typed result
func (s *Service) Summary(ctx context.Context, q Query) (*communication.SummaryReport, error) {
	q.Type = communication.TypeSummary
	result, err := s.Generate(ctx, q)
	if err != nil {
		return nil, err
	}
	return result.(*communication.SummaryReport), nil
}

func (s *Service) run(ctx context.Context, q Query, calls []communication.CallRecord) (interface{}, error) {
	switch q.Type {
	case communication.TypeTalkListen:
		return s.engine.TalkListen(ctx, calls)
	case communication.TypeSummary:
		return s.engine.Summary(ctx, calls, q.PeriodDays)
	default:
		return s.engine.Interruptions(ctx, calls)
	}
}

func newReport(reportType string) interface{} {
	switch reportType {
	case communication.TypeTalkListen:
		return &communication.TalkListenReport{}
	case communication.TypeSummary:
		return &communication.SummaryReport{}
	default:
		return &communication.InterruptionReport{}
	}
}
