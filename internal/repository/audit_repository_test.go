package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/hcadmin-api/internal/models"
)

func newAuditRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func auditRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "action", "table_name", "record_id", "old_values", "new_values", "ip_address", "user_agent", "created_at"})
}

func TestBuildAuditWhereEmptyFilter(t *testing.T) {
	where, args := buildAuditWhere(models.AuditQueryFilter{})
	assert.Equal(t, "WHERE 1=1", where)
	assert.Empty(t, args)
}

func TestBuildAuditWhereAllPredicates(t *testing.T) {
	userID := "u1"
	tableName := "patients"
	actionType := "UPDATE"
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)

	where, args := buildAuditWhere(models.AuditQueryFilter{
		UserID:     &userID,
		TableName:  &tableName,
		ActionType: &actionType,
		StartDate:  &start,
		EndDate:    &end,
	})

	assert.Equal(t, "WHERE 1=1 AND user_id = $1 AND table_name = $2 AND action = $3 AND created_at >= $4 AND created_at <= $5", where)
	assert.Equal(t, []interface{}{userID, tableName, actionType, start, end}, args)
}

func TestBuildAuditWherePlaceholdersStayOrdinal(t *testing.T) {
	actionType := "DELETE"
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	where, args := buildAuditWhere(models.AuditQueryFilter{ActionType: &actionType, EndDate: &end})

	assert.Equal(t, "WHERE 1=1 AND action = $1 AND created_at <= $2", where)
	assert.Len(t, args, 2)
}

func TestAuditRepositoryListOrdersByRecency(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	now := time.Now()
	u1 := "u1"
	rows := auditRows().
		AddRow("log-2", &u1, "UPDATE", "patients", nil, nil, nil, "10.0.0.1", "agent", now).
		AddRow("log-1", &u1, "CREATE", "patients", nil, nil, nil, "10.0.0.1", "agent", now.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, action, table_name, record_id, old_values, new_values, ip_address, user_agent, created_at FROM audit_logs WHERE 1=1 ORDER BY created_at DESC LIMIT 100")).
		WillReturnRows(rows)

	logs, err := repo.List(context.Background(), models.AuditQueryFilter{}, 100)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "log-2", logs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryListAppliesFilterArgs(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	userID := "u7"
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE 1=1 AND user_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT 50")).
		WithArgs(userID, start).
		WillReturnRows(auditRows())

	logs, err := repo.List(context.Background(), models.AuditQueryFilter{UserID: &userID, StartDate: &start}, 50)
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryCounts(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	total, err := repo.CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, total)

	since := time.Date(2026, 4, 1, 0, 0, 0, 0, time.Local)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE created_at >= $1")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	today, err := repo.CountCreatedSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 5, today)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryInsertFillsDefaults(t *testing.T) {
	db, mock, cleanup := newAuditRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	userID := "u1"
	entry := &models.AuditLog{
		UserID:    &userID,
		Action:    "CREATE",
		TableName: "facilities",
		IPAddress: "10.0.0.1",
	}

	require.NoError(t, repo.Insert(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
