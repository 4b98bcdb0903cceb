package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careops/hcadmin-api/internal/models"
)

type auditRecorder interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
}

// Audit records an audit log entry after successful requests. Service layer
// writes carry richer before/after snapshots; this catches everything else.
func Audit(recorder auditRecorder, action, tableName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.JWTClaims)
			userID = &user.UserID
		}

		body, _ := json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		_ = recorder.Insert(c.Request.Context(), &models.AuditLog{
			UserID:    userID,
			Action:    action,
			TableName: tableName,
			NewValues: body,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
	}
}
