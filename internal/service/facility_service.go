package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careops/hcadmin-api/internal/models"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
)

type facilityRepository interface {
	List(ctx context.Context, filter models.FacilityFilter) ([]models.Facility, int, error)
	FindByID(ctx context.Context, id string) (*models.Facility, error)
	FindByCode(ctx context.Context, code string) (*models.Facility, error)
	Create(ctx context.Context, facility *models.Facility) error
	Update(ctx context.Context, facility *models.Facility) error
	Delete(ctx context.Context, id string) error
}

// CreateFacilityRequest represents payload for creating facilities.
type CreateFacilityRequest struct {
	Name    string              `json:"name" validate:"required"`
	Code    string              `json:"code" validate:"required,alphanum"`
	Kind    models.FacilityKind `json:"kind" validate:"required,oneof=HOSPITAL CLINIC LAB PHARMACY"`
	Address string              `json:"address" validate:"required"`
	Phone   string              `json:"phone"`
	Active  bool                `json:"active"`
}

// UpdateFacilityRequest payload for updating facilities.
type UpdateFacilityRequest struct {
	Name    string              `json:"name" validate:"required"`
	Kind    models.FacilityKind `json:"kind" validate:"required,oneof=HOSPITAL CLINIC LAB PHARMACY"`
	Address string              `json:"address" validate:"required"`
	Phone   string              `json:"phone"`
	Active  *bool               `json:"active"`
}

// FacilityService handles facility management. List results are cached with a
// short TTL and invalidated on every mutation.
type FacilityService struct {
	repo      facilityRepository
	audit     auditRecorder
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFacilityService creates an instance of FacilityService.
func NewFacilityService(repo facilityRepository, audit auditRecorder, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *FacilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FacilityService{repo: repo, audit: audit, cache: cache, validator: validate, logger: logger}
}

type cachedFacilityList struct {
	Facilities []models.Facility  `json:"facilities"`
	Pagination *models.Pagination `json:"pagination"`
}

// List returns paginated facilities, served from cache when possible.
func (s *FacilityService) List(ctx context.Context, filter models.FacilityFilter) ([]models.Facility, *models.Pagination, bool, error) {
	key := facilityListCacheKey(filter)

	var cached cachedFacilityList
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Facilities, cached.Pagination, true, nil
	}

	facilities, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list facilities")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}

	_ = s.cache.Set(ctx, key, cachedFacilityList{Facilities: facilities, Pagination: pagination}, 0)

	return facilities, pagination, false, nil
}

// Get returns a facility by ID.
func (s *FacilityService) Get(ctx context.Context, id string) (*models.Facility, error) {
	facility, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "facility not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load facility")
	}
	return facility, nil
}

// Create adds a new facility.
func (s *FacilityService) Create(ctx context.Context, req CreateFacilityRequest, actorID string, meta RequestMeta) (*models.Facility, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create facility payload")
	}

	code := strings.ToUpper(req.Code)
	if _, err := s.repo.FindByCode(ctx, code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "facility code already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check code uniqueness")
	}

	facility := &models.Facility{
		ID:      uuid.NewString(),
		Name:    req.Name,
		Code:    code,
		Kind:    req.Kind,
		Address: req.Address,
		Phone:   req.Phone,
		Active:  req.Active,
	}

	if err := s.repo.Create(ctx, facility); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create facility")
	}

	_ = s.cache.Invalidate(ctx, "facilities:*")

	newPayload, _ := json.Marshal(facility)
	s.record(ctx, actorID, models.AuditActionCreate, facility.ID, nil, newPayload, meta)

	return facility, nil
}

// Update modifies the facility attributes.
func (s *FacilityService) Update(ctx context.Context, id string, req UpdateFacilityRequest, actorID string, meta RequestMeta) (*models.Facility, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update facility payload")
	}

	facility, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "facility not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load facility")
	}

	oldPayload, _ := json.Marshal(facility)

	facility.Name = req.Name
	facility.Kind = req.Kind
	facility.Address = req.Address
	facility.Phone = req.Phone
	if req.Active != nil {
		facility.Active = *req.Active
	}

	if err := s.repo.Update(ctx, facility); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update facility")
	}

	_ = s.cache.Invalidate(ctx, "facilities:*")

	newPayload, _ := json.Marshal(facility)
	s.record(ctx, actorID, models.AuditActionUpdate, facility.ID, oldPayload, newPayload, meta)

	return facility, nil
}

// Delete performs a soft delete (inactive) on a facility.
func (s *FacilityService) Delete(ctx context.Context, id string, actorID string, meta RequestMeta) error {
	facility, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "facility not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load facility")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete facility")
	}

	_ = s.cache.Invalidate(ctx, "facilities:*")

	oldPayload, _ := json.Marshal(map[string]interface{}{"active": facility.Active})
	s.record(ctx, actorID, models.AuditActionDelete, facility.ID, oldPayload, []byte(`{"active":false}`), meta)

	return nil
}

func (s *FacilityService) record(ctx context.Context, actorID, action, recordID string, oldValues, newValues []byte, meta RequestMeta) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Insert(ctx, &models.AuditLog{
		UserID:    &actorID,
		Action:    action,
		TableName: "facilities",
		RecordID:  &recordID,
		OldValues: oldValues,
		NewValues: newValues,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record facility audit log", zap.String("action", action), zap.Error(err))
	}
}

func facilityListCacheKey(filter models.FacilityFilter) string {
	kind := ""
	if filter.Kind != nil {
		kind = string(*filter.Kind)
	}
	active := ""
	if filter.Active != nil {
		active = fmt.Sprintf("%t", *filter.Active)
	}
	return fmt.Sprintf("facilities:list:%s:%s:%s:%d:%d", kind, active, strings.ToLower(filter.Search), filter.Page, filter.PageSize)
}
