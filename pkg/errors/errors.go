package errors

import (
	"errors"
	"fmt"
)

// Codes shared by the domain packages and the transport layer.
const (
	CodeMalformedConfig     = "malformed_config"
	CodeMissingDependency   = "missing_dependency"
	CodeEmbeddingMismatch   = "embedding_mismatch"
	CodeMalformedEmbeddings = "malformed_embeddings"
	CodeInvalidInput        = "invalid_input"
	CodeUnsupportedModel    = "unsupported_model"
	CodeNotFound            = "not_found"
	CodeStorage             = "storage_error"
	CodeTraining            = "training_error"
)

// AppError encodes domain specific error details.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Wrap produces a new AppError instance.
func Wrap(code, message string, err error) error {
	if err == nil {
		return &AppError{Code: code, Message: message}
	}
	return &AppError{Code: code, Message: message, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(code string, err error, format string, args ...any) error {
	return Wrap(code, fmt.Sprintf(format, args...), err)
}

// IsCode helps handler differentiate failures.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the outermost AppError in the chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
