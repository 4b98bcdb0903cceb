package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careops/hcadmin-api/internal/models"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
	"github.com/careops/hcadmin-api/pkg/response"
)

type auditQueryService interface {
	Query(ctx context.Context, callerID string, action models.AuditQueryAction, filter models.AuditQueryFilter) (*models.AuditQueryResult, error)
}

// AuditHandler exposes the audit log query endpoint.
type AuditHandler struct {
	service auditQueryService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(svc auditQueryService) *AuditHandler {
	return &AuditHandler{service: svc}
}

type auditQueryFilters struct {
	UserID     *string `json:"user_id"`
	TableName  *string `json:"table_name"`
	ActionType *string `json:"action_type"`
	StartDate  *string `json:"start_date"`
	EndDate    *string `json:"end_date"`
	Limit      *int    `json:"limit"`
}

type auditQueryRequest struct {
	Action  string            `json:"action" binding:"required"`
	Filters auditQueryFilters `json:"filters"`
}

// Query godoc
// @Summary Query audit logs
// @Description Run an audit log query action with optional filters
// @Tags Audit
// @Accept json
// @Produce json
// @Param payload body auditQueryRequest true "Query payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.ErrorBody
// @Failure 401 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Router /audit [post]
func (h *AuditHandler) Query(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req auditQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid request payload"))
		return
	}

	filter, err := buildQueryFilter(req.Filters)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.Query(c.Request.Context(), claims.UserID, models.AuditQueryAction(req.Action), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.WithMetadata(c, http.StatusOK, result.Entries, result.Metadata)
}

func buildQueryFilter(in auditQueryFilters) (models.AuditQueryFilter, error) {
	filter := models.AuditQueryFilter{
		UserID:     in.UserID,
		TableName:  in.TableName,
		ActionType: in.ActionType,
		Limit:      in.Limit,
	}

	start, err := parseFilterTime(in.StartDate)
	if err != nil {
		return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid start_date: %v", err))
	}
	filter.StartDate = start

	end, err := parseFilterTime(in.EndDate)
	if err != nil {
		return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid end_date: %v", err))
	}
	filter.EndDate = end

	return filter, nil
}

// parseFilterTime accepts RFC3339 timestamps or plain dates.
func parseFilterTime(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, *value); err == nil {
		return &ts, nil
	}
	ts, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return nil, fmt.Errorf("expected RFC3339 timestamp or YYYY-MM-DD date")
	}
	return &ts, nil
}
