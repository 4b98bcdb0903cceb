package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/careops/hcadmin-api/internal/models"
	"github.com/careops/hcadmin-api/internal/service"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
	"github.com/careops/hcadmin-api/pkg/response"
)

// FacilityHandler handles facility CRUD endpoints.
type FacilityHandler struct {
	service *service.FacilityService
}

// NewFacilityHandler creates a new facility handler.
func NewFacilityHandler(svc *service.FacilityService) *FacilityHandler {
	return &FacilityHandler{service: svc}
}

// List godoc
// @Summary List facilities
// @Description List facilities with pagination and filtering
// @Tags Facilities
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param kind query string false "Facility kind filter"
// @Param active query bool false "Active filter"
// @Param search query string false "Search term"
// @Success 200 {object} response.Envelope
// @Router /facilities [get]
func (h *FacilityHandler) List(c *gin.Context) {
	var filter models.FacilityFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	if kind := c.Query("kind"); kind != "" {
		k := models.FacilityKind(kind)
		filter.Kind = &k
	}

	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}

	filter.Search = c.Query("search")

	facilities, pagination, cacheHit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("X-Cache", cacheStatus(cacheHit))
	response.JSON(c, http.StatusOK, facilities, pagination)
}

// Get godoc
// @Summary Get facility
// @Description Get facility detail
// @Tags Facilities
// @Produce json
// @Param id path string true "Facility ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.ErrorBody
// @Router /facilities/{id} [get]
func (h *FacilityHandler) Get(c *gin.Context) {
	facility, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, facility, nil)
}

// Create godoc
// @Summary Create facility
// @Description Register a new facility
// @Tags Facilities
// @Accept json
// @Produce json
// @Param payload body service.CreateFacilityRequest true "Create facility payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.ErrorBody
// @Router /facilities [post]
func (h *FacilityHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateFacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	ip, userAgent := requestMeta(c)
	facility, err := h.service.Create(c.Request.Context(), req, claims.UserID, service.RequestMeta{IP: ip, UserAgent: userAgent})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, facility)
}

// Update godoc
// @Summary Update facility
// @Description Update an existing facility
// @Tags Facilities
// @Accept json
// @Produce json
// @Param id path string true "Facility ID"
// @Param payload body service.UpdateFacilityRequest true "Update facility payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.ErrorBody
// @Failure 404 {object} response.ErrorBody
// @Router /facilities/{id} [put]
func (h *FacilityHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.UpdateFacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	ip, userAgent := requestMeta(c)
	facility, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims.UserID, service.RequestMeta{IP: ip, UserAgent: userAgent})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, facility, nil)
}

// Delete godoc
// @Summary Delete facility
// @Description Soft delete a facility
// @Tags Facilities
// @Produce json
// @Param id path string true "Facility ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.ErrorBody
// @Router /facilities/{id} [delete]
func (h *FacilityHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	ip, userAgent := requestMeta(c)
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID, service.RequestMeta{IP: ip, UserAgent: userAgent}); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

func cacheStatus(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}
