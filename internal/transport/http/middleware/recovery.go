package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/domain"
	appLogger "github.com/SYSUMSC/hackreg-t1-backend/internal/infra/logger"
)

// Recovery turns a panic into a 500 error body.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		appLogger.ForRequest(c.Request.Context(), log).Error("panic while serving request",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		AbortWithError(c, domain.NewInternal(fmt.Errorf("panic: %v", recovered)))
	})
}
