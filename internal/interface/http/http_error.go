package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying error.
func (e *HTTPError) Unwrap() error { return e.Err }

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

// statusByCode maps domain error codes onto HTTP statuses.
var statusByCode = map[string]int{
	apperrors.CodeMalformedConfig:     http.StatusBadRequest,
	apperrors.CodeInvalidInput:        http.StatusBadRequest,
	apperrors.CodeMissingDependency:   http.StatusUnprocessableEntity,
	apperrors.CodeEmbeddingMismatch:   http.StatusUnprocessableEntity,
	apperrors.CodeMalformedEmbeddings: http.StatusUnprocessableEntity,
	apperrors.CodeUnsupportedModel:    http.StatusUnprocessableEntity,
	apperrors.CodeNotFound:            http.StatusNotFound,
	apperrors.CodeStorage:             http.StatusInternalServerError,
	apperrors.CodeTraining:            http.StatusInternalServerError,
}

// fromAppError converts a domain error into an HTTPError keeping its code.
func fromAppError(err error) *HTTPError {
	code := apperrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		return asHTTPError(err)
	}
	message := errMessage(err)
	if status >= http.StatusInternalServerError {
		message = "something went wrong"
	}
	return NewHTTPError(status, code, message, err)
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return &HTTPError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "something went wrong",
		Err:     err,
	}
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}
