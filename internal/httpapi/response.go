package httpapi

import (
	"errors"
	"net/http"

	"coin-wallet-go/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     string      `json:"error"`
	Code      apperr.Code `json:"code"`
	RequestId string      `json:"requestId,omitempty"`
}

func respondWithSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

// respondWithError renders err with the status of its code. Unclassified
// errors are reported as internal without leaking their message.
func respondWithError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Wrap(apperr.CodeInternal, "internal error", err)
	}
	status := apperr.HTTPStatus(appErr.Code)

	fields := []zap.Field{
		zap.String("request_id", requestId(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("error_code", string(appErr.Code)),
		zap.Error(err),
	}
	if userId := c.GetString(userIdKey); userId != "" {
		fields = append(fields, zap.String("user_id", userId))
	}
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("Request failed", fields...)
	case status == http.StatusUnauthorized:
		logger.Warn("Unauthorized request", fields...)
	default:
		logger.Info("Request rejected", fields...)
	}

	message := appErr.Message
	if appErr.Code == apperr.CodeInternal {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Success:   false,
		Error:     message,
		Code:      appErr.Code,
		RequestId: requestId(c),
	})
}

func bindError(err error) error {
	return apperr.Wrap(apperr.CodeValidation, "invalid request: "+err.Error(), err)
}
