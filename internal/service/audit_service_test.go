package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/careops/hcadmin-api/internal/models"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
)

type auditLogsStub struct {
	entries    []models.AuditLog
	listErr    error
	lastFilter models.AuditQueryFilter
	lastLimit  int

	total       int
	countAllErr error
	today       int
	todayErr    error
	lastSince   time.Time
}

func (s *auditLogsStub) List(ctx context.Context, filter models.AuditQueryFilter, limit int) ([]models.AuditLog, error) {
	s.lastFilter = filter
	s.lastLimit = limit
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.entries, nil
}

func (s *auditLogsStub) CountAll(ctx context.Context) (int, error) {
	if s.countAllErr != nil {
		return 0, s.countAllErr
	}
	return s.total, nil
}

func (s *auditLogsStub) CountCreatedSince(ctx context.Context, ts time.Time) (int, error) {
	s.lastSince = ts
	if s.todayErr != nil {
		return 0, s.todayErr
	}
	return s.today, nil
}

type identityStub struct {
	users   map[string]*models.User
	findErr error

	profiles      []models.UserProfile
	profilesErr   error
	profilesCalls int
	lastIDs       []string

	active    int
	activeErr error
}

func (s *identityStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	user, ok := s.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return user, nil
}

func (s *identityStub) ProfilesByIDs(ctx context.Context, ids []string) ([]models.UserProfile, error) {
	s.profilesCalls++
	s.lastIDs = ids
	if s.profilesErr != nil {
		return nil, s.profilesErr
	}
	return s.profiles, nil
}

func (s *identityStub) CountSignedInSince(ctx context.Context, ts time.Time) (int, error) {
	if s.activeErr != nil {
		return 0, s.activeErr
	}
	return s.active, nil
}

func superAdmin(id string) *models.User {
	return &models.User{ID: id, Role: models.RoleSuperAdmin, Active: true}
}

func newAuditServiceForTest(logs *auditLogsStub, identity *identityStub) *AuditService {
	return NewAuditService(logs, identity, nil, nil, zap.NewNop(), AuditServiceConfig{})
}

func TestAuditQueryRequiresCaller(t *testing.T) {
	svc := newAuditServiceForTest(&auditLogsStub{}, &identityStub{})

	_, err := svc.Query(context.Background(), "", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Status, appErr.Status)
}

func TestAuditQueryDeniesNonSuperAdmin(t *testing.T) {
	identity := &identityStub{users: map[string]*models.User{
		"admin": {ID: "admin", Role: models.RoleAdmin, Active: true},
	}}
	svc := newAuditServiceForTest(&auditLogsStub{}, identity)

	_, err := svc.Query(context.Background(), "admin", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrForbidden.Status, appErr.Status)
	assert.Equal(t, "super admin access required", appErr.Message)
}

func TestAuditQueryDeniesInactiveSuperAdmin(t *testing.T) {
	identity := &identityStub{users: map[string]*models.User{
		"sa": {ID: "sa", Role: models.RoleSuperAdmin, Active: false},
	}}
	svc := newAuditServiceForTest(&auditLogsStub{}, identity)

	_, err := svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Status, appErrors.FromError(err).Status)
}

func TestAuditQueryFailsClosedOnLookupError(t *testing.T) {
	identity := &identityStub{findErr: errors.New("connection refused")}
	svc := newAuditServiceForTest(&auditLogsStub{}, identity)

	_, err := svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Status, appErrors.FromError(err).Status)
}

func TestAuditQueryRejectsUnknownAction(t *testing.T) {
	identity := &identityStub{users: map[string]*models.User{"sa": superAdmin("sa")}}
	svc := newAuditServiceForTest(&auditLogsStub{}, identity)

	_, err := svc.Query(context.Background(), "sa", models.AuditQueryAction("drop_logs"), models.AuditQueryFilter{})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidAction.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrInvalidAction.Status, appErr.Status)
}

func TestAuditQueryRequiredFilters(t *testing.T) {
	identity := &identityStub{users: map[string]*models.User{"sa": superAdmin("sa")}}
	svc := newAuditServiceForTest(&auditLogsStub{}, identity)

	_, err := svc.Query(context.Background(), "sa", models.AuditQueryGetUserActivity, models.AuditQueryFilter{})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "user_id filter is required")

	_, err = svc.Query(context.Background(), "sa", models.AuditQueryGetTableChanges, models.AuditQueryFilter{})
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "table_name filter is required")
}

func TestAuditQueryDefaultLimits(t *testing.T) {
	cases := []struct {
		action models.AuditQueryAction
		filter models.AuditQueryFilter
		limit  int
	}{
		{models.AuditQueryGetLogs, models.AuditQueryFilter{}, 100},
		{models.AuditQueryGetUserActivity, models.AuditQueryFilter{UserID: strPtr("u1")}, 50},
		{models.AuditQueryGetTableChanges, models.AuditQueryFilter{TableName: strPtr("patients")}, 100},
		{models.AuditQueryExportLogs, models.AuditQueryFilter{}, 1000},
	}

	for _, tc := range cases {
		logs := &auditLogsStub{}
		identity := &identityStub{users: map[string]*models.User{"sa": superAdmin("sa")}}
		svc := newAuditServiceForTest(logs, identity)

		_, err := svc.Query(context.Background(), "sa", tc.action, tc.filter)
		require.NoError(t, err, string(tc.action))
		assert.Equal(t, tc.limit, logs.lastLimit, string(tc.action))
	}
}

func TestAuditQueryCallerLimitOverridesDefault(t *testing.T) {
	logs := &auditLogsStub{}
	identity := &identityStub{users: map[string]*models.User{"sa": superAdmin("sa")}}
	svc := newAuditServiceForTest(logs, identity)

	limit := 7
	_, err := svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{Limit: &limit})
	require.NoError(t, err)
	assert.Equal(t, 7, logs.lastLimit)

	zero := 0
	_, err = svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{Limit: &zero})
	require.NoError(t, err)
	assert.Equal(t, 100, logs.lastLimit)
}

func TestAuditQueryWrapsListFailureAsDatabaseError(t *testing.T) {
	logs := &auditLogsStub{listErr: errors.New(`relation "audit_logs" does not exist`)}
	identity := &identityStub{users: map[string]*models.User{"sa": superAdmin("sa")}}
	svc := newAuditServiceForTest(logs, identity)

	_, err := svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDatabase.Code, appErr.Code)
	assert.Equal(t, appErrors.ErrDatabase.Status, appErr.Status)
	assert.Contains(t, appErr.Message, `relation "audit_logs" does not exist`)
}

func TestAuditQueryEnrichesWithSingleBatchedLookup(t *testing.T) {
	u1, u2 := "u1", "u2"
	logs := &auditLogsStub{entries: []models.AuditLog{
		{ID: "l1", UserID: &u1},
		{ID: "l2", UserID: &u2},
		{ID: "l3", UserID: &u1},
		{ID: "l4"},
	}}
	identity := &identityStub{
		users: map[string]*models.User{"sa": superAdmin("sa")},
		profiles: []models.UserProfile{
			{ID: "u1", FirstName: "Ana", LastName: "Gomez", Email: "ana@example.com"},
		},
	}
	svc := newAuditServiceForTest(logs, identity)

	result, err := svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.NoError(t, err)

	assert.Equal(t, 1, identity.profilesCalls)
	assert.ElementsMatch(t, []string{"u1", "u2"}, identity.lastIDs)

	require.Len(t, result.Entries, 4)
	require.NotNil(t, result.Entries[0].User)
	assert.Equal(t, "Ana", result.Entries[0].User.FirstName)
	assert.NotNil(t, result.Entries[2].User)
	// u2 has no matching profile and the system row has no actor; both stay.
	assert.Nil(t, result.Entries[1].User)
	assert.Nil(t, result.Entries[3].User)
}

func TestAuditQuerySkipsEnrichmentWithoutActors(t *testing.T) {
	logs := &auditLogsStub{entries: []models.AuditLog{{ID: "l1"}, {ID: "l2"}}}
	identity := &identityStub{users: map[string]*models.User{"sa": superAdmin("sa")}}
	svc := newAuditServiceForTest(logs, identity)

	_, err := svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.NoError(t, err)
	assert.Zero(t, identity.profilesCalls)
}

func TestAuditQueryStatisticsAreFilterIndependent(t *testing.T) {
	u1 := "u1"
	logs := &auditLogsStub{
		entries: []models.AuditLog{{ID: "l1", UserID: &u1}},
		total:   250,
		today:   12,
	}
	identity := &identityStub{
		users:  map[string]*models.User{"sa": superAdmin("sa"), "u1": {ID: "u1"}},
		active: 9,
	}
	svc := newAuditServiceForTest(logs, identity)

	table := "patients"
	result, err := svc.Query(context.Background(), "sa", models.AuditQueryGetTableChanges, models.AuditQueryFilter{TableName: &table})
	require.NoError(t, err)

	assert.Equal(t, 250, result.Metadata.TotalLogs)
	assert.Equal(t, 12, result.Metadata.TodayLogs)
	assert.Equal(t, 9, result.Metadata.ActiveUsers)
	assert.Equal(t, 1, result.Metadata.FilteredCount)
}

func TestAuditQueryTodayBoundaryIsLocalMidnight(t *testing.T) {
	logs := &auditLogsStub{}
	identity := &identityStub{users: map[string]*models.User{"sa": superAdmin("sa")}}
	svc := newAuditServiceForTest(logs, identity)

	loc := time.FixedZone("UTC+7", 7*3600)
	svc.now = func() time.Time { return time.Date(2026, 8, 30, 1, 30, 0, 0, loc) }

	_, err := svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.NoError(t, err)

	want := time.Date(2026, 8, 30, 0, 0, 0, 0, loc)
	assert.True(t, logs.lastSince.Equal(want), "expected %v, got %v", want, logs.lastSince)
}

func TestAuditQueryActiveUsersDegradesToZero(t *testing.T) {
	logs := &auditLogsStub{total: 10, today: 2}
	identity := &identityStub{
		users:     map[string]*models.User{"sa": superAdmin("sa")},
		activeErr: errors.New("identity store down"),
	}
	svc := newAuditServiceForTest(logs, identity)

	result, err := svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.NoError(t, err)

	assert.Equal(t, 10, result.Metadata.TotalLogs)
	assert.Equal(t, 2, result.Metadata.TodayLogs)
	assert.Zero(t, result.Metadata.ActiveUsers)
}

func TestAuditQueryStatisticsFailureIsDatabaseError(t *testing.T) {
	logs := &auditLogsStub{countAllErr: errors.New("timeout")}
	identity := &identityStub{users: map[string]*models.User{"sa": superAdmin("sa")}}
	svc := newAuditServiceForTest(logs, identity)

	_, err := svc.Query(context.Background(), "sa", models.AuditQueryGetLogs, models.AuditQueryFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDatabase.Code, appErrors.FromError(err).Code)
}

func strPtr(s string) *string { return &s }
