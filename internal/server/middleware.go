package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/partnerly/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

// Identity headers are injected by the platform gateway after it has
// authenticated the caller. This engine trusts them; transport-level
// authentication lives upstream.
const (
	headerUserID  = "X-User-Id"
	headerAdminID = "X-Admin-Id"
)

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := ctxlogger.WithCorrelationID(c.Request.Context(), c.GetHeader("X-Correlation-Id"))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		ctxlogger.FromContext(ctx).Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.GetHeader(headerUserID))
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

func currentAdminID(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.GetHeader(headerAdminID))
	if raw == "" {
		return "", false
	}
	return raw, true
}
