package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careops/hcadmin-api/internal/models"
)

const auditColumns = "id, user_id, action, table_name, record_id, old_values, new_values, ip_address, user_agent, created_at"

// AuditRepository provides read access to the append-only audit_logs table
// plus the single insert path used when mutations are recorded. Audit entries
// are never updated or deleted.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new instance of AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// buildAuditWhere translates the filter into a conjunctive WHERE clause.
// Only supplied predicates constrain the query; date bounds are inclusive.
// Pure construction: no execution, ordering, or limiting happens here.
func buildAuditWhere(filter models.AuditQueryFilter) (string, []interface{}) {
	where := "WHERE 1=1"
	var args []interface{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.TableName != nil {
		args = append(args, *filter.TableName)
		where += fmt.Sprintf(" AND table_name = $%d", len(args))
	}
	if filter.ActionType != nil {
		args = append(args, *filter.ActionType)
		where += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	return where, args
}

// List executes the filtered query ordered by recency, capped at limit rows.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditQueryFilter, limit int) ([]models.AuditLog, error) {
	where, args := buildAuditWhere(filter)
	query := fmt.Sprintf("SELECT %s FROM audit_logs %s ORDER BY created_at DESC LIMIT %d", auditColumns, where, limit)

	logs := make([]models.AuditLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}

// CountAll returns the total number of audit log rows.
func (r *AuditRepository) CountAll(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_logs"); err != nil {
		return 0, fmt.Errorf("count audit logs: %w", err)
	}
	return total, nil
}

// CountCreatedSince returns the number of rows recorded at or after ts.
func (r *AuditRepository) CountCreatedSince(ctx context.Context, ts time.Time) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_logs WHERE created_at >= $1", ts); err != nil {
		return 0, fmt.Errorf("count audit logs since: %w", err)
	}
	return total, nil
}

// Insert stores an audit log entry.
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, table_name, record_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :table_name, :record_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
