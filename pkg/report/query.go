package report

import (
	"sort"
	"strings"
	"time"

	"commetrics-server/pkg/access"
	"commetrics-server/pkg/communication"
	"commetrics-server/pkg/errors"
)

const dateLayout = "2006-01-02"

// Defaults are applied to queries that leave fields empty
type Defaults struct {
	PeriodDays    int
	MaxPeriodDays int
	Location      *time.Location
}

// Query describes one report request
type Query struct {
	Type       string
	PeriodDays int
	DateFrom   string
	DateTo     string
	Manager    string
	Department string
	Scope      access.Scope

	// From and To are the resolved inclusive date window, set by Normalize
	From time.Time
	To   time.Time
}

// Normalize validates q and resolves its date window. Explicit dates win over
// the relative period; a relative period ends today in the configured location.
func (q Query) Normalize(now time.Time, d Defaults) (Query, error) {
	q.Type = strings.TrimSpace(q.Type)
	if q.Type == "" {
		q.Type = communication.TypeInterruptions
	}
	if !communication.ValidType(q.Type) {
		return q, errors.NewInvalidReportType(q.Type)
	}

	q.Manager = strings.TrimSpace(q.Manager)
	q.Department = strings.TrimSpace(q.Department)

	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	if q.PeriodDays == 0 {
		q.PeriodDays = d.PeriodDays
	}
	if q.PeriodDays < 1 || q.PeriodDays > d.MaxPeriodDays {
		return q, errors.NewInvalidPeriod("period must be between 1 and the configured maximum",
			map[string]interface{}{"period": q.PeriodDays, "max": d.MaxPeriodDays})
	}

	switch {
	case q.DateFrom == "" && q.DateTo == "":
		q.To = today
		q.From = today.AddDate(0, 0, -(q.PeriodDays - 1))
	default:
		var err error
		if q.DateTo != "" {
			if q.To, err = parseDate("date_to", q.DateTo); err != nil {
				return q, err
			}
		} else {
			q.To = today
		}
		if q.DateFrom != "" {
			if q.From, err = parseDate("date_from", q.DateFrom); err != nil {
				return q, err
			}
		} else {
			q.From = q.To.AddDate(0, 0, -(q.PeriodDays - 1))
		}
	}

	if q.From.After(q.To) {
		return q, errors.NewInvalidPeriod("date_from is after date_to",
			map[string]interface{}{"date_from": q.From.Format(dateLayout), "date_to": q.To.Format(dateLayout)})
	}

	q.PeriodDays = int(q.To.Sub(q.From).Hours()/24) + 1
	if q.PeriodDays > d.MaxPeriodDays {
		return q, errors.NewInvalidPeriod("date range is too long",
			map[string]interface{}{"days": q.PeriodDays, "max": d.MaxPeriodDays})
	}

	return q, nil
}

// CacheKeyParts identifies the result of a normalized query
func (q Query) CacheKeyParts() []string {
	scope := "all"
	if !q.Scope.All {
		departments := q.Scope.VisibleDepartments()
		sort.Strings(departments)
		scope = "dept:" + strings.Join(departments, ",")
	}
	return []string{
		q.Type,
		q.From.Format(dateLayout),
		q.To.Format(dateLayout),
		q.Manager,
		q.Department,
		scope,
	}
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, errors.NewInvalidPeriod(field+" must be YYYY-MM-DD",
			map[string]interface{}{field: value})
	}
	return t, nil
}
