package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/hcadmin-api/internal/middleware"
	"github.com/careops/hcadmin-api/internal/models"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
)

type fakeAuditSrv struct {
	result *models.AuditQueryResult
	err    error
	last   struct {
		callerID string
		action   models.AuditQueryAction
		filter   models.AuditQueryFilter
	}
}

func (f *fakeAuditSrv) Query(_ context.Context, callerID string, action models.AuditQueryAction, filter models.AuditQueryFilter) (*models.AuditQueryResult, error) {
	f.last.callerID = callerID
	f.last.action = action
	f.last.filter = filter
	return f.result, f.err
}

func auditQueryContext(t *testing.T, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/audit", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return c, rec
}

func TestAuditHandlerQueryRequiresClaims(t *testing.T) {
	handler := NewAuditHandler(&fakeAuditSrv{})

	c, rec := auditQueryContext(t, `{"action":"get_logs"}`)
	handler.Query(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body.Error)
}

func TestAuditHandlerQueryInvalidPayload(t *testing.T) {
	service := &fakeAuditSrv{}
	handler := NewAuditHandler(service)

	c, rec := auditQueryContext(t, `{"filters":{}}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1"})
	handler.Query(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, service.last.callerID)
}

func TestAuditHandlerQueryInvalidDates(t *testing.T) {
	handler := NewAuditHandler(&fakeAuditSrv{})

	for _, body := range []string{
		`{"action":"get_logs","filters":{"start_date":"not-a-date"}}`,
		`{"action":"get_logs","filters":{"end_date":"31-12-2026"}}`,
	} {
		c, rec := auditQueryContext(t, body)
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1"})
		handler.Query(c)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var errBody errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
		assert.Contains(t, errBody.Error, "expected RFC3339 timestamp or YYYY-MM-DD date")
	}
}

func TestAuditHandlerQuerySuccess(t *testing.T) {
	service := &fakeAuditSrv{
		result: &models.AuditQueryResult{
			Entries: []models.AuditLog{{ID: "log-1", Action: "UPDATE"}},
			Metadata: models.AuditQueryMetadata{
				TotalLogs:     40,
				TodayLogs:     3,
				ActiveUsers:   5,
				FilteredCount: 1,
			},
		},
	}
	handler := NewAuditHandler(service)

	payload := `{"action":"get_user_activity","filters":{"user_id":"user-7","start_date":"2026-08-01","limit":25}}`
	c, rec := auditQueryContext(t, payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1"})
	handler.Query(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", service.last.callerID)
	assert.Equal(t, models.AuditQueryGetUserActivity, service.last.action)
	require.NotNil(t, service.last.filter.UserID)
	assert.Equal(t, "user-7", *service.last.filter.UserID)
	require.NotNil(t, service.last.filter.StartDate)
	assert.Equal(t, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC), *service.last.filter.StartDate)
	require.NotNil(t, service.last.filter.Limit)
	assert.Equal(t, 25, *service.last.filter.Limit)

	var envelope auditEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "log-1", envelope.Data[0]["id"])
	assert.Equal(t, float64(40), envelope.Metadata["total_logs"])
	assert.Equal(t, float64(1), envelope.Metadata["filtered_count"])
}

func TestAuditHandlerQueryServiceErrorPassthrough(t *testing.T) {
	handler := NewAuditHandler(&fakeAuditSrv{
		err: appErrors.Clone(appErrors.ErrForbidden, "super admin access required"),
	})

	c, rec := auditQueryContext(t, `{"action":"get_logs"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "viewer-1"})
	handler.Query(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "super admin access required", body.Error)
}

type auditEnvelope struct {
	Success  bool                     `json:"success"`
	Data     []map[string]interface{} `json:"data"`
	Metadata map[string]interface{}   `json:"metadata"`
}

type errorBody struct {
	Error string `json:"error"`
}
