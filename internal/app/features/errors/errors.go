// internal/app/features/errors/errors.go
package errors

import (
	"net/http"

	"github.com/dalemusser/stratawiki/internal/app/system/apperr"
	"github.com/dalemusser/stratawiki/internal/app/system/jsonutil"
	"github.com/dalemusser/stratawiki/internal/app/system/requestid"
	"go.uber.org/zap"
)

// ErrorLogger wraps the zap logger for error logging.
type ErrorLogger struct {
	logger *zap.Logger
}

// NewErrorLogger creates a new ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{logger: logger}
}

// Log logs an error with the given message and error.
func (e *ErrorLogger) Log(r *http.Request, msg string, err error) {
	e.LogWithFields(r, msg, err)
}

// LogWithFields logs an error with additional fields.
func (e *ErrorLogger) LogWithFields(r *http.Request, msg string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Error(err),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
		zap.String("request_id", requestid.Get(r)),
	}, fields...)
	e.logger.Error(msg, allFields...)
}

// Write responds with err mapped to its status. Unclassified errors are
// logged under msg first; classified ones are the caller's mistake and are
// not.
func (e *ErrorLogger) Write(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		e.Log(r, msg, err)
	}
	jsonutil.WriteError(w, err)
}

// NotFound is the router's handler for unknown paths.
func NotFound(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteError(w, apperr.NotFound("no such endpoint"))
}

// MethodNotAllowed is the router's handler for known paths with the wrong
// method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	jsonutil.JSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error": "method not allowed",
		"code":  string(apperr.KindValidation),
	})
}
