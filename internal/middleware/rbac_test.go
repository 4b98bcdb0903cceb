package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/careops/hcadmin-api/internal/models"
)

type accountLookupStub struct {
	users map[string]*models.User
	err   error
}

func (s *accountLookupStub) FindByID(_ context.Context, id string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return nil, errors.New("sql: no rows in result set")
	}
	return user, nil
}

func rbacRouter(mw gin.HandlerFunc, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/resource/:id", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, mw, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func performRBAC(router *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	lookup := &accountLookupStub{users: map[string]*models.User{}}
	router := rbacRouter(RequireRoles(lookup, models.RoleSuperAdmin), nil)

	rec := performRBAC(router, "/resource/r1")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRolesChecksLiveRecord(t *testing.T) {
	// The token still claims SUPERADMIN; the row has been demoted.
	lookup := &accountLookupStub{users: map[string]*models.User{
		"u1": {ID: "u1", Role: models.RoleViewer, Active: true},
	}}
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleSuperAdmin}
	router := rbacRouter(RequireRoles(lookup, models.RoleSuperAdmin), claims)

	rec := performRBAC(router, "/resource/r1")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRolesDeniesDeactivatedAccount(t *testing.T) {
	lookup := &accountLookupStub{users: map[string]*models.User{
		"u1": {ID: "u1", Role: models.RoleSuperAdmin, Active: false},
	}}
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleSuperAdmin}
	router := rbacRouter(RequireRoles(lookup, models.RoleSuperAdmin), claims)

	rec := performRBAC(router, "/resource/r1")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRolesFailsClosedOnLookupError(t *testing.T) {
	lookup := &accountLookupStub{err: errors.New("db unreachable")}
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleSuperAdmin}
	router := rbacRouter(RequireRoles(lookup, models.RoleSuperAdmin), claims)

	rec := performRBAC(router, "/resource/r1")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRolesAllowsActiveRole(t *testing.T) {
	lookup := &accountLookupStub{users: map[string]*models.User{
		"u1": {ID: "u1", Role: models.RoleAdmin, Active: true},
	}}
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}
	router := rbacRouter(RequireRoles(lookup, models.RoleSuperAdmin, models.RoleAdmin), claims)

	rec := performRBAC(router, "/resource/r1")

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireRolesOrSelfMatchesRouteParam(t *testing.T) {
	lookup := &accountLookupStub{users: map[string]*models.User{
		"u1": {ID: "u1", Role: models.RoleStaff, Active: true},
	}}
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStaff}
	router := rbacRouter(RequireRolesOrSelf(lookup, models.RoleSuperAdmin), claims)

	assert.Equal(t, http.StatusNoContent, performRBAC(router, "/resource/u1").Code)
	assert.Equal(t, http.StatusForbidden, performRBAC(router, "/resource/u2").Code)
}

func TestRequireRolesOrSelfDeniesDeactivatedSelf(t *testing.T) {
	lookup := &accountLookupStub{users: map[string]*models.User{
		"u1": {ID: "u1", Role: models.RoleStaff, Active: false},
	}}
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStaff}
	router := rbacRouter(RequireRolesOrSelf(lookup, models.RoleSuperAdmin), claims)

	rec := performRBAC(router, "/resource/u1")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
