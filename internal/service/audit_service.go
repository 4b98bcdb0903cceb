package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/careops/hcadmin-api/internal/models"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
)

const statsCacheKey = "audit:statistics"

type auditLogRepository interface {
	List(ctx context.Context, filter models.AuditQueryFilter, limit int) ([]models.AuditLog, error)
	CountAll(ctx context.Context) (int, error)
	CountCreatedSince(ctx context.Context, ts time.Time) (int, error)
}

type identityRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ProfilesByIDs(ctx context.Context, ids []string) ([]models.UserProfile, error)
	CountSignedInSince(ctx context.Context, ts time.Time) (int, error)
}

// actionPolicy captures the per-action ordering/limit contract. Ordering is
// uniformly created_at descending; only required filters and limits vary.
type actionPolicy struct {
	requiresUserID bool
	requiresTable  bool
	defaultLimit   int
}

var queryPolicies = map[models.AuditQueryAction]actionPolicy{
	models.AuditQueryGetLogs:         {defaultLimit: 100},
	models.AuditQueryGetUserActivity: {requiresUserID: true, defaultLimit: 50},
	models.AuditQueryGetTableChanges: {requiresTable: true, defaultLimit: 100},
	models.AuditQueryExportLogs:      {defaultLimit: 1000},
}

// AuditServiceConfig tunes statistics behaviour.
type AuditServiceConfig struct {
	// ActiveUserWindow is the rolling sign-in window behind active_users.
	ActiveUserWindow time.Duration
	// StatsCacheEnabled allows the global statistics block to be served from
	// cache. Disabled by default: the contract recomputes on every request.
	StatsCacheEnabled bool
	StatsCacheTTL     time.Duration
}

// AuditService runs the audit query pipeline: permission check, filtered
// query, profile enrichment, and the global statistics block.
type AuditService struct {
	logs     auditLogRepository
	identity identityRepository
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
	cfg      AuditServiceConfig
}

// NewAuditService constructs an AuditService.
func NewAuditService(logs auditLogRepository, identity identityRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, cfg AuditServiceConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ActiveUserWindow <= 0 {
		cfg.ActiveUserWindow = 7 * 24 * time.Hour
	}
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = time.Minute
	}
	return &AuditService{
		logs:     logs,
		identity: identity,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// Query executes one audit query for the given caller. The caller must hold
// the SUPERADMIN role; any failure resolving the caller is treated as not
// authorized, never as an internal error.
func (s *AuditService) Query(ctx context.Context, callerID string, action models.AuditQueryAction, filter models.AuditQueryFilter) (*models.AuditQueryResult, error) {
	start := s.now()

	if err := s.authorize(ctx, callerID); err != nil {
		s.metrics.ObserveAuditQuery(string(action), "forbidden", s.now().Sub(start))
		return nil, err
	}

	policy, ok := queryPolicies[action]
	if !ok {
		s.metrics.ObserveAuditQuery(string(action), "invalid", s.now().Sub(start))
		return nil, appErrors.Clone(appErrors.ErrInvalidAction, fmt.Sprintf("unsupported action: %s", action))
	}
	if policy.requiresUserID && filter.UserID == nil {
		s.metrics.ObserveAuditQuery(string(action), "invalid", s.now().Sub(start))
		return nil, appErrors.Clone(appErrors.ErrValidation, "user_id filter is required for get_user_activity")
	}
	if policy.requiresTable && filter.TableName == nil {
		s.metrics.ObserveAuditQuery(string(action), "invalid", s.now().Sub(start))
		return nil, appErrors.Clone(appErrors.ErrValidation, "table_name filter is required for get_table_changes")
	}

	limit := policy.defaultLimit
	if filter.Limit != nil && *filter.Limit > 0 {
		limit = *filter.Limit
	}

	entries, err := s.logs.List(ctx, filter, limit)
	if err != nil {
		s.metrics.ObserveAuditQuery(string(action), "db_error", s.now().Sub(start))
		return nil, appErrors.Database(err)
	}

	if err := s.enrich(ctx, entries); err != nil {
		s.metrics.ObserveAuditQuery(string(action), "db_error", s.now().Sub(start))
		return nil, appErrors.Database(err)
	}

	stats, err := s.statistics(ctx)
	if err != nil {
		s.metrics.ObserveAuditQuery(string(action), "db_error", s.now().Sub(start))
		return nil, err
	}

	s.metrics.ObserveAuditQuery(string(action), "ok", s.now().Sub(start))
	return &models.AuditQueryResult{
		Entries: entries,
		Metadata: models.AuditQueryMetadata{
			TotalLogs:     stats.TotalLogs,
			TodayLogs:     stats.TodayLogs,
			ActiveUsers:   stats.ActiveUsers,
			FilteredCount: len(entries),
		},
	}, nil
}

// authorize resolves the caller and requires an active SUPERADMIN. Fail-closed:
// lookup errors and unknown callers deny access rather than surfacing a 500.
func (s *AuditService) authorize(ctx context.Context, callerID string) error {
	if callerID == "" {
		return appErrors.ErrUnauthorized
	}
	user, err := s.identity.FindByID(ctx, callerID)
	if err != nil {
		s.logger.Warn("audit permission lookup failed, denying access", zap.String("caller_id", callerID), zap.Error(err))
		return appErrors.Clone(appErrors.ErrForbidden, "super admin access required")
	}
	if user.Role != models.RoleSuperAdmin || !user.Active {
		return appErrors.Clone(appErrors.ErrForbidden, "super admin access required")
	}
	return nil
}

// enrich joins display profiles onto the page by actor id. The distinct set
// of non-null actor ids is fetched with a single batched lookup; rows whose
// actor no longer exists stay in the result unenriched.
func (s *AuditService) enrich(ctx context.Context, entries []models.AuditLog) error {
	idSet := make(map[string]struct{})
	for _, entry := range entries {
		if entry.UserID != nil && *entry.UserID != "" {
			idSet[*entry.UserID] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return nil
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	profiles, err := s.identity.ProfilesByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("enrich audit logs: %w", err)
	}

	byID := make(map[string]models.UserProfile, len(profiles))
	for _, profile := range profiles {
		byID[profile.ID] = profile
	}

	for i := range entries {
		if entries[i].UserID == nil {
			continue
		}
		if profile, ok := byID[*entries[i].UserID]; ok {
			p := profile
			entries[i].User = &p
		}
	}
	return nil
}

// statistics computes the global counters. They are deliberately independent
// of the request's filters so the metadata block gives a stable system-wide
// picture. An identity subsystem failure degrades active_users to zero
// instead of failing the request.
func (s *AuditService) statistics(ctx context.Context) (models.AuditStatistics, error) {
	var stats models.AuditStatistics

	if s.cfg.StatsCacheEnabled {
		if hit, _ := s.cache.Get(ctx, statsCacheKey, &stats); hit {
			return stats, nil
		}
	}

	total, err := s.logs.CountAll(ctx)
	if err != nil {
		return stats, appErrors.Database(err)
	}

	now := s.now()
	year, month, day := now.Date()
	startOfDay := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	today, err := s.logs.CountCreatedSince(ctx, startOfDay)
	if err != nil {
		return stats, appErrors.Database(err)
	}

	active, err := s.identity.CountSignedInSince(ctx, now.Add(-s.cfg.ActiveUserWindow))
	if err != nil {
		s.logger.Warn("active user lookup failed, degrading to zero", zap.Error(err))
		s.metrics.RecordStatsDegradation()
		active = 0
	}

	stats = models.AuditStatistics{TotalLogs: total, TodayLogs: today, ActiveUsers: active}

	if s.cfg.StatsCacheEnabled {
		_ = s.cache.Set(ctx, statsCacheKey, stats, s.cfg.StatsCacheTTL)
	}
	return stats, nil
}
