package models

import "time"

// AuditAction constants represent mutation kinds recorded to the audit trail.
const (
	AuditActionCreate         = "CREATE"
	AuditActionUpdate         = "UPDATE"
	AuditActionDelete         = "DELETE"
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
)

// AuditLog represents one immutable audit trail record. Entries are
// append-only: no update or delete path exists anywhere in the service.
type AuditLog struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	TableName string    `db:"table_name" json:"table_name"`
	RecordID  *string   `db:"record_id" json:"record_id,omitempty"`
	OldValues []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// User carries the enrichment profile joined by UserID. Nil for system
	// events and for actors whose account no longer exists.
	User *UserProfile `db:"-" json:"user,omitempty"`
}

// AuditQueryAction names the operation mode of an audit query request.
type AuditQueryAction string

const (
	AuditQueryGetLogs         AuditQueryAction = "get_logs"
	AuditQueryGetUserActivity AuditQueryAction = "get_user_activity"
	AuditQueryGetTableChanges AuditQueryAction = "get_table_changes"
	AuditQueryExportLogs      AuditQueryAction = "export_logs"
)

// AuditQueryFilter is the request-scoped filter for audit log queries.
// Absent fields impose no constraint; supplied predicates are conjunctive.
type AuditQueryFilter struct {
	UserID     *string    `json:"user_id,omitempty"`
	TableName  *string    `json:"table_name,omitempty"`
	ActionType *string    `json:"action_type,omitempty"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Limit      *int       `json:"limit,omitempty"`
}

// AuditStatistics holds the global counters returned with every audit query.
// They are always system-wide, never scoped to the request's filters.
type AuditStatistics struct {
	TotalLogs   int `json:"total_logs"`
	TodayLogs   int `json:"today_logs"`
	ActiveUsers int `json:"active_users"`
}

// AuditQueryMetadata is the metadata block of a successful audit query.
type AuditQueryMetadata struct {
	TotalLogs     int `json:"total_logs"`
	TodayLogs     int `json:"today_logs"`
	ActiveUsers   int `json:"active_users"`
	FilteredCount int `json:"filtered_count"`
}

// AuditQueryResult bundles the enriched page with its metadata block.
type AuditQueryResult struct {
	Entries  []AuditLog
	Metadata AuditQueryMetadata
}
