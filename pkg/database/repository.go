package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"commetrics-server/pkg/communication"
	"commetrics-server/pkg/metrics"
	"commetrics-server/pkg/telemetry/tracing"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// CallFilter selects the calls feeding a report. The date window is half-open:
// From <= call_date < To.
type CallFilter struct {
	From       time.Time
	To         time.Time
	Manager    string
	Department string

	// Departments restricts rows to the listed departments. Nil means no
	// restriction; an empty non-nil slice matches nothing.
	Departments []string
}

// callRow mirrors the SELECT column list
type callRow struct {
	ManagerName      string  `db:"manager_name"`
	Department       string  `db:"department"`
	CallDate         string  `db:"call_date"`
	DiarizationJSON  *string `db:"diarization_json"`
	AudioDurationSec float64 `db:"audio_duration_sec"`
}

// The pre-filter mirrors communication.Eligible and the declared speaker check
// so the engine only receives rows it can analyse.
const listDiarizedCallsQuery = `
	SELECT c.manager_name, c.department,
		   DATE_FORMAT(c.call_date, '%Y-%m-%d') AS call_date,
		   t.diarization_json, c.audio_duration_sec
	FROM calls c
	INNER JOIN transcripts t ON t.call_id = c.id
	WHERE t.diarization_json IS NOT NULL
	  AND JSON_EXTRACT(t.diarization_json, '$.speakers_count') >= ?
	  AND c.audio_duration_sec > ?
	  AND c.call_date >= ? AND c.call_date < ?`

// Repository provides read access to diarized calls
type Repository struct {
	db     *MySQLDatabase
	logger *logrus.Logger
}

// NewRepository creates a new repository
func NewRepository(db *MySQLDatabase, logger *logrus.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListDiarizedCalls returns the calls inside the filter's window that carry
// usable diarization, ordered by call date.
func (r *Repository) ListDiarizedCalls(ctx context.Context, filter CallFilter) ([]communication.CallRecord, error) {
	if filter.Departments != nil && len(filter.Departments) == 0 {
		return []communication.CallRecord{}, nil
	}

	query, args, err := r.buildCallQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build call query: %w", err)
	}

	ctx, cancel := r.db.getContext(ctx)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "db.list_diarized_calls", attribute.String("db.system", "mysql"))
	done := metrics.ObserveDBQuery("list_diarized_calls")
	var rows []callRow
	err = r.db.db.SelectContext(ctx, &rows, query, args...)
	done()
	span.SetAttributes(attribute.Int("db.rows", len(rows)))
	tracing.End(span, err)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"from":       filter.From.Format(time.DateOnly),
			"to":         filter.To.Format(time.DateOnly),
			"manager":    filter.Manager,
			"department": filter.Department,
		}).Error("Failed to list diarized calls")
		return nil, fmt.Errorf("failed to list diarized calls: %w", err)
	}

	calls := make([]communication.CallRecord, len(rows))
	for i, row := range rows {
		calls[i] = communication.CallRecord{
			ManagerName:      row.ManagerName,
			Department:       row.Department,
			CallDate:         row.CallDate,
			DiarizationJSON:  row.DiarizationJSON,
			AudioDurationSec: row.AudioDurationSec,
		}
	}

	r.logger.WithFields(logrus.Fields{
		"from":  filter.From.Format(time.DateOnly),
		"to":    filter.To.Format(time.DateOnly),
		"calls": len(calls),
	}).Debug("Loaded diarized calls")

	return calls, nil
}

// Health checks the underlying connection
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

func (r *Repository) buildCallQuery(filter CallFilter) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString(listDiarizedCallsQuery)

	args := []interface{}{
		communication.MinSpeakersCount,
		communication.MinAudioDurationSec,
		filter.From.Format(time.DateOnly),
		filter.To.Format(time.DateOnly),
	}

	if filter.Manager != "" {
		sb.WriteString("\n\t  AND c.manager_name = ?")
		args = append(args, filter.Manager)
	}

	if filter.Department != "" {
		sb.WriteString("\n\t  AND c.department = ?")
		args = append(args, filter.Department)
	}

	if len(filter.Departments) > 0 {
		sb.WriteString("\n\t  AND c.department IN (?)")
		args = append(args, filter.Departments)
	}

	sb.WriteString("\n\tORDER BY c.call_date, c.id")

	query, args, err := sqlx.In(sb.String(), args...)
	if err != nil {
		return "", nil, err
	}
	return r.db.db.Rebind(query), args, nil
}
