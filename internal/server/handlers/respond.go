package handlers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
	"github.com/mamadbah2/freshledger/internal/service/bulk"
)

const sessionKey = "session"

// SessionMiddleware resolves the operator session. A bearer token equal to
// adminToken grants the admin role; everything else is staff.
func SessionMiddleware(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := models.Session{
			Operator: strings.TrimSpace(c.GetHeader("X-Operator")),
			Role:     models.RoleStaff,
		}

		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if adminToken != "" && token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) == 1 {
			sess.Role = models.RoleAdmin
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) models.Session {
	if v, ok := c.Get(sessionKey); ok {
		if sess, ok := v.(models.Session); ok {
			return sess
		}
	}
	return models.Session{Role: models.RoleStaff}
}

// writeError maps domain errors onto HTTP responses.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
		return
	}
	status, msg := errorStatus(c, logger, err)
	c.JSON(status, gin.H{"error": msg})
}

// errorStatus maps a non-validation error to its status and client message.
func errorStatus(c *gin.Context, logger *zap.Logger, err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrAlreadyExists), errors.Is(err, bulk.ErrDuplicateRequest):
		return http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrTransientStore):
		logger.Error("store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		return http.StatusServiceUnavailable, "store temporarily unavailable"
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		return http.StatusInternalServerError, "internal error"
	}
}

func badRequest(c *gin.Context, logger *zap.Logger, msg string, err error) {
	logger.Warn(msg, zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
