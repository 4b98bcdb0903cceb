package handler

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/careops/hcadmin-api/internal/models"
	"github.com/careops/hcadmin-api/internal/service"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
	"github.com/careops/hcadmin-api/pkg/response"
)

// ExportHandler exposes asynchronous audit export endpoints.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

type exportRequest struct {
	Format  string            `json:"format" binding:"required"`
	Filters auditQueryFilters `json:"filters"`
}

// Create godoc
// @Summary Create audit export
// @Description Queue an asynchronous audit log export job
// @Tags Audit
// @Accept json
// @Produce json
// @Param payload body exportRequest true "Export payload"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.ErrorBody
// @Router /audit/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}

	filter, err := buildQueryFilter(req.Filters)
	if err != nil {
		response.Error(c, err)
		return
	}

	job, err := h.service.Enqueue(c.Request.Context(), claims.UserID, models.ExportFormat(req.Format), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Get export job status
// @Description Return an export job; completed jobs include a signed download URL
// @Tags Audit
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.ErrorBody
// @Router /audit/exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	job, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download export file
// @Description Stream the export file for a signed token
// @Tags Audit
// @Produce octet-stream
// @Param id path string true "Job ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.ErrorBody
// @Router /audit/exports/{id}/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token query parameter is required"))
		return
	}

	file, contentType, err := h.service.Download(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", "attachment; filename="+filepath.Base(file.Name()))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
