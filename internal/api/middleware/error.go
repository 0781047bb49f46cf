package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/martijn/vaultkeeper/internal/api/dto"
	"github.com/martijn/vaultkeeper/internal/core/domain"
	"github.com/sirupsen/logrus"
)

var registerOnce sync.Once

// RegisterJSONFieldNames makes binding errors report the json name of a field
func RegisterJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
	})
}

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:     http.StatusBadRequest,
	domain.KindNotFound:       http.StatusNotFound,
	domain.KindAuthorization:  http.StatusUnauthorized,
	domain.KindForbidden:      http.StatusForbidden,
	domain.KindPrecondition:   http.StatusPreconditionFailed,
	domain.KindMigration:      http.StatusInternalServerError,
	domain.KindPartialFailure: http.StatusInternalServerError,
	domain.KindTimeout:        http.StatusGatewayTimeout,
	domain.KindStore:          http.StatusInternalServerError,
}

// ErrorHandlerMiddleware renders the last error pushed with c.Error and
// turns panics into a 500
func ErrorHandlerMiddleware(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				}).Errorf("panic: %v", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, dto.Fail(
					http.StatusText(http.StatusInternalServerError),
					"An unexpected error occurred",
					nil,
				))
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		ginErr := c.Errors.Last()
		status, resp := renderError(ginErr)
		if status >= http.StatusInternalServerError {
			log.WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"status": status,
			}).WithError(ginErr.Err).Error("request failed")
		}
		c.JSON(status, resp)
	}
}

func renderError(ginErr *gin.Error) (int, dto.Response) {
	err := ginErr.Err

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return http.StatusBadRequest, dto.Fail(http.StatusText(http.StatusBadRequest), "invalid request", fields)
	}

	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		status, ok := kindStatus[domainErr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		message := domainErr.Message
		if domainErr.Kind == domain.KindStore {
			message = "An internal error occurred"
		}
		return status, dto.Fail(http.StatusText(status), message, domainErr.Fields)
	}

	// Malformed JSON and other binding failures
	if ginErr.IsType(gin.ErrorTypeBind) {
		return http.StatusBadRequest, dto.Fail(http.StatusText(http.StatusBadRequest), "invalid request body", nil)
	}

	return http.StatusInternalServerError, dto.Fail(
		http.StatusText(http.StatusInternalServerError),
		"An internal error occurred",
		nil,
	)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed the %s check", fe.Field(), fe.Tag())
	}
}
