package digest

import (
	"context"
	"fmt"
	"time"

	"commetrics-server/pkg/access"
	"commetrics-server/pkg/communication"
	"commetrics-server/pkg/correlation"
	"commetrics-server/pkg/messaging"
	"commetrics-server/pkg/metrics"
	"commetrics-server/pkg/report"
	"commetrics-server/pkg/telemetry/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// SummarySource produces the combined report a digest is built from
type SummarySource interface {
	Summary(ctx context.Context, q report.Query) (*communication.SummaryReport, error)
}

// Sink receives digest alerts
type Sink interface {
	Name() string
	Publish(ctx context.Context, alert messaging.Alert) error
}

// Config controls what a digest run covers
type Config struct {
	Schedule    string
	PeriodDays  int
	MinSeverity communication.Severity
	Timeout     time.Duration
}

// Result summarises one digest run
type Result struct {
	Managers        int `json:"managers"`
	Alerts          int `json:"alerts"`
	FailedPublishes int `json:"failed_publishes"`
}

// Digest turns the periodic summary into alerts
type Digest struct {
	source SummarySource
	sinks  []Sink
	config Config
	logger *logrus.Logger
	now    func() time.Time
}

// New creates a digest. Sinks that are nil are skipped.
func New(source SummarySource, config Config, logger *logrus.Logger, sinks ...Sink) *Digest {
	if config.MinSeverity == "" {
		config.MinSeverity = communication.SeverityCritical
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}

	d := &Digest{
		source: source,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	for _, sink := range sinks {
		if sink != nil {
			d.sinks = append(d.sinks, sink)
		}
	}
	return d
}

// RunOnce builds the summary for the configured period over every department
// and sends one alert per manager at or above the minimum severity to every
// sink. A failing sink does not stop delivery to the others.
func (d *Digest) RunOnce(ctx context.Context) (result Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	if correlation.FromContext(ctx).IsEmpty() {
		ctx = correlation.WithCorrelationID(ctx, correlation.New())
	}
	ctx, span := tracing.StartSpan(ctx, "digest.run", attribute.Int("digest.period_days", d.config.PeriodDays))
	defer func() {
		span.SetAttributes(
			attribute.Int("digest.alerts", result.Alerts),
			attribute.Int("digest.failed_publishes", result.FailedPublishes),
		)
		tracing.End(span, err)
	}()

	log := correlation.LoggerFromContext(ctx, d.logger).WithFields(logrus.Fields{
		"period_days":  d.config.PeriodDays,
		"min_severity": d.config.MinSeverity,
	})

	summary, err := d.source.Summary(ctx, report.Query{
		PeriodDays: d.config.PeriodDays,
		Scope:      access.Unrestricted(),
	})
	if err != nil {
		metrics.RecordDigestRun("error")
		log.WithError(err).Error("Digest summary failed")
		return result, fmt.Errorf("building digest summary: %w", err)
	}
	result.Managers = len(summary.Managers)

	generatedAt := d.now()
	for _, manager := range summary.Managers {
		if !manager.Severity.AtLeast(d.config.MinSeverity) {
			continue
		}

		alert := messaging.NewAlert(manager, summary.PeriodDays, generatedAt)
		result.Alerts++

		for _, sink := range d.sinks {
			if err := sink.Publish(ctx, alert); err != nil {
				result.FailedPublishes++
				metrics.RecordAlertPublish(sink.Name(), "error")
				log.WithError(err).WithFields(logrus.Fields{
					"sink":    sink.Name(),
					"manager": alert.Manager,
				}).Warn("Failed to publish alert")
				continue
			}
			metrics.RecordAlertPublish(sink.Name(), "success")
		}
	}

	status := "success"
	if result.FailedPublishes > 0 {
		status = "partial"
	}
	metrics.RecordDigestRun(status)

	log.WithFields(logrus.Fields{
		"managers": result.Managers,
		"alerts":   result.Alerts,
		"failures": result.FailedPublishes,
	}).Info("Digest completed")

	return result, nil
}
