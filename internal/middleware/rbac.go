package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/careops/hcadmin-api/internal/models"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
	"github.com/careops/hcadmin-api/pkg/response"
)

type accountLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// RequireRoles gates a route on the caller's live user record. Access tokens
// outlive role changes and deactivation, so the role and active flag are read
// from the row rather than trusted from the claim; a failed lookup denies the
// request.
func RequireRoles(users accountLookup, roles ...models.UserRole) gin.HandlerFunc {
	return requireRoles(users, false, roles)
}

// RequireRolesOrSelf additionally admits a caller whose id matches the
// route's id parameter. Deactivated accounts are still denied.
func RequireRolesOrSelf(users accountLookup, roles ...models.UserRole) gin.HandlerFunc {
	return requireRoles(users, true, roles)
}

func requireRoles(users accountLookup, allowSelf bool, roles []models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		account, err := users.FindByID(c.Request.Context(), claims.UserID)
		if err != nil || account == nil || !account.Active {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		if _, ok := allowed[account.Role]; ok {
			c.Next()
			return
		}
		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == account.ID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
