package database

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var callColumns = []string{"manager_name", "department", "call_date", "diarization_json", "audio_duration_sec"}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	db := NewFromDB(sqlx.NewDb(mockDB, "mysql"), time.Second, logger)
	return NewRepository(db, logger), mock
}

func januaryFilter() CallFilter {
	return CallFilter{
		From: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestListDiarizedCalls(t *testing.T) {
	repo, mock := newMockRepository(t)

	blob := `{"segments":[{"speaker":"A","start":0,"end":5},{"speaker":"B","start":5.2,"end":8}],"speakers_count":2}`
	rows := sqlmock.NewRows(callColumns).
		AddRow("Alice", "Sales", "2024-01-03", blob, 120.5).
		AddRow("Bob", "Support", "2024-01-04", nil, 45.0)

	mock.ExpectQuery(regexp.QuoteMeta("JSON_EXTRACT(t.diarization_json, '$.speakers_count') >= ?")).
		WithArgs(2, 30.0, "2024-01-01", "2024-02-01").
		WillReturnRows(rows)

	calls, err := repo.ListDiarizedCalls(context.Background(), januaryFilter())
	require.NoError(t, err)
	require.Len(t, calls, 2)

	assert.Equal(t, "Alice", calls[0].ManagerName)
	assert.Equal(t, "Sales", calls[0].Department)
	assert.Equal(t, "2024-01-03", calls[0].CallDate)
	require.NotNil(t, calls[0].DiarizationJSON)
	assert.Equal(t, blob, *calls[0].DiarizationJSON)
	assert.Equal(t, 120.5, calls[0].AudioDurationSec)
	assert.Nil(t, calls[1].DiarizationJSON)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDiarizedCalls_Filters(t *testing.T) {
	repo, mock := newMockRepository(t)

	filter := januaryFilter()
	filter.Manager = "Alice"
	filter.Department = "Sales"
	filter.Departments = []string{"Sales", "Support"}

	mock.ExpectQuery(regexp.QuoteMeta("AND c.manager_name = ? AND c.department = ? AND c.department IN (?, ?) ORDER BY c.call_date")).
		WithArgs(2, 30.0, "2024-01-01", "2024-02-01", "Alice", "Sales", "Sales", "Support").
		WillReturnRows(sqlmock.NewRows(callColumns))

	calls, err := repo.ListDiarizedCalls(context.Background(), filter)
	require.NoError(t, err)
	assert.NotNil(t, calls)
	assert.Empty(t, calls)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDiarizedCalls_NoVisibleDepartments(t *testing.T) {
	repo, mock := newMockRepository(t)

	filter := januaryFilter()
	filter.Departments = []string{}

	calls, err := repo.ListDiarizedCalls(context.Background(), filter)
	require.NoError(t, err)
	assert.Empty(t, calls)

	// no query may reach the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDiarizedCalls_QueryError(t *testing.T) {
	repo, mock := newMockRepository(t)

	queryErr := errors.New("connection refused")
	mock.ExpectQuery("FROM calls c").WillReturnError(queryErr)

	_, err := repo.ListDiarizedCalls(context.Background(), januaryFilter())
	require.Error(t, err)
	assert.ErrorIs(t, err, queryErr)
}

func TestHealth(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectPing()
	assert.NoError(t, repo.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("gone away"))
	assert.Error(t, repo.Health(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateConfig(t *testing.T) {
	valid := MySQLConfig{
		Host:            "localhost",
		Port:            3306,
		Database:        "callcenter",
		Username:        "commetrics",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
		Charset:         "utf8mb4",
		Loc:             "UTC",
	}
	assert.NoError(t, ValidateConfig(valid))

	broken := valid
	broken.Port = 0
	assert.Error(t, ValidateConfig(broken))

	broken = valid
	broken.MaxIdleConns = 20
	assert.Error(t, ValidateConfig(broken))
}

func TestDriverConfig(t *testing.T) {
	cfg, err := driverConfig(MySQLConfig{
		Host:     "db",
		Port:     3307,
		Database: "callcenter",
		Username: "reader",
		Password: "pw",
		Charset:  "utf8mb4",
		Loc:      "UTC",
		TLS:      "skip-verify",
	})
	require.NoError(t, err)

	dsn := cfg.FormatDSN()
	assert.Contains(t, dsn, "reader:pw@tcp(db:3307)/callcenter")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "tls=skip-verify")

	_, err = driverConfig(MySQLConfig{Loc: "Nowhere/Atlantis"})
	assert.Error(t, err)
}
