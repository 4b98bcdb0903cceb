package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/careops/hcadmin-api/internal/models"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
)

type facilityRepoStub struct {
	byID      map[string]*models.Facility
	byCode    map[string]*models.Facility
	listCalls int
}

func newFacilityRepoStub() *facilityRepoStub {
	return &facilityRepoStub{byID: map[string]*models.Facility{}, byCode: map[string]*models.Facility{}}
}

func (r *facilityRepoStub) add(facility *models.Facility) {
	r.byID[facility.ID] = facility
	r.byCode[facility.Code] = facility
}

func (r *facilityRepoStub) FindByID(ctx context.Context, id string) (*models.Facility, error) {
	facility, ok := r.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return facility, nil
}

func (r *facilityRepoStub) FindByCode(ctx context.Context, code string) (*models.Facility, error) {
	facility, ok := r.byCode[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return facility, nil
}

func (r *facilityRepoStub) List(ctx context.Context, filter models.FacilityFilter) ([]models.Facility, int, error) {
	r.listCalls++
	var facilities []models.Facility
	for _, facility := range r.byID {
		facilities = append(facilities, *facility)
	}
	return facilities, len(facilities), nil
}

func (r *facilityRepoStub) Create(ctx context.Context, facility *models.Facility) error {
	r.add(facility)
	return nil
}

func (r *facilityRepoStub) Update(ctx context.Context, facility *models.Facility) error {
	r.byID[facility.ID] = facility
	return nil
}

func (r *facilityRepoStub) Delete(ctx context.Context, id string) error {
	if facility, ok := r.byID[id]; ok {
		facility.Active = false
	}
	return nil
}

// cacheRepoStub is an in-memory CacheRepository with pattern invalidation.
type cacheRepoStub struct {
	values map[string][]byte
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{values: map[string][]byte{}}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.values {
		if strings.HasPrefix(key, prefix) {
			delete(c.values, key)
		}
	}
	return nil
}

func newFacilityServiceForTest(repo *facilityRepoStub, audit *auditRecorderStub, cacheRepo *cacheRepoStub) *FacilityService {
	var cacheSvc *CacheService
	if cacheRepo != nil {
		cacheSvc = NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	}
	var recorder auditRecorder
	if audit != nil {
		recorder = audit
	}
	return NewFacilityService(repo, recorder, cacheSvc, nil, zap.NewNop())
}

func TestFacilityServiceCreateUppercasesCode(t *testing.T) {
	repo := newFacilityRepoStub()
	audit := &auditRecorderStub{}
	svc := newFacilityServiceForTest(repo, audit, nil)

	facility, err := svc.Create(context.Background(), CreateFacilityRequest{
		Name:    "Central Clinic",
		Code:    "cc01",
		Kind:    models.FacilityClinic,
		Address: "1 Main St",
		Active:  true,
	}, "actor-1", testMeta())
	require.NoError(t, err)

	assert.Equal(t, "CC01", facility.Code)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "facilities", audit.entries[0].TableName)
}

func TestFacilityServiceCreateRejectsDuplicateCode(t *testing.T) {
	repo := newFacilityRepoStub()
	repo.add(&models.Facility{ID: "f1", Code: "CC01"})
	svc := newFacilityServiceForTest(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateFacilityRequest{
		Name:    "Another Clinic",
		Code:    "CC01",
		Kind:    models.FacilityClinic,
		Address: "2 Main St",
	}, "actor-1", testMeta())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestFacilityServiceCreateValidatesKind(t *testing.T) {
	svc := newFacilityServiceForTest(newFacilityRepoStub(), nil, nil)

	_, err := svc.Create(context.Background(), CreateFacilityRequest{
		Name:    "Odd Place",
		Code:    "OP01",
		Kind:    models.FacilityKind("SPA"),
		Address: "3 Main St",
	}, "actor-1", testMeta())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFacilityServiceListServesFromCache(t *testing.T) {
	repo := newFacilityRepoStub()
	repo.add(&models.Facility{ID: "f1", Name: "Central Clinic", Code: "CC01", Active: true})
	cacheRepo := newCacheRepoStub()
	svc := newFacilityServiceForTest(repo, nil, cacheRepo)

	_, _, hit, err := svc.List(context.Background(), models.FacilityFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, repo.listCalls)

	facilities, pagination, hit, err := svc.List(context.Background(), models.FacilityFilter{})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, repo.listCalls)
	assert.Len(t, facilities, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestFacilityServiceMutationsInvalidateCache(t *testing.T) {
	repo := newFacilityRepoStub()
	repo.add(&models.Facility{ID: "f1", Name: "Central Clinic", Code: "CC01", Kind: models.FacilityClinic, Address: "1 Main St", Active: true})
	cacheRepo := newCacheRepoStub()
	svc := newFacilityServiceForTest(repo, nil, cacheRepo)

	_, _, _, err := svc.List(context.Background(), models.FacilityFilter{})
	require.NoError(t, err)
	assert.NotEmpty(t, cacheRepo.values)

	active := true
	_, err = svc.Update(context.Background(), "f1", UpdateFacilityRequest{
		Name:    "Central Clinic North",
		Kind:    models.FacilityClinic,
		Address: "1 Main St",
		Active:  &active,
	}, "actor-1", testMeta())
	require.NoError(t, err)

	assert.Empty(t, cacheRepo.values)
}

func TestFacilityServiceDeleteIsSoft(t *testing.T) {
	repo := newFacilityRepoStub()
	repo.add(&models.Facility{ID: "f1", Code: "CC01", Active: true})
	audit := &auditRecorderStub{}
	svc := newFacilityServiceForTest(repo, audit, nil)

	require.NoError(t, svc.Delete(context.Background(), "f1", "actor-1", testMeta()))
	assert.False(t, repo.byID["f1"].Active)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionDelete, audit.entries[0].Action)
}
