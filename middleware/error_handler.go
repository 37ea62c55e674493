package middleware

import (
	"net/http"
	"strconv"

	"github.com/firstnattapon/24wash-backend/errors"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON error body for non-webhook endpoints.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ErrorHandler converts errors attached to the gin context into structured
// JSON responses. The webhook endpoint never relies on this: LINE retries
// non-200 responses, so webhook failures are reported in-band.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		log := logger.GetLogger()

		if appError, ok := err.(*errors.AppError); ok {
			statusCode := appError.GetHTTPStatus()
			log.Errorw("Request failed",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"type", string(appError.Type),
				"message", appError.Message,
				"detail", appError.Detail)

			c.JSON(statusCode, ErrorResponse{
				Type:    string(appError.Type),
				Message: appError.Message,
				Details: appError.Detail,
				Code:    strconv.Itoa(statusCode),
			})
			return
		}

		log.Errorw("Unhandled request error",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err)

		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Type:    string(errors.ServerError),
			Message: "Internal server error",
			Code:    strconv.Itoa(http.StatusInternalServerError),
		})
	}
}
