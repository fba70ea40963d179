package domain

import (
	"errors"
	"fmt"
)

// Error types for flattening failures
type ErrorType string

const (
	ErrorTypeInputRejected       ErrorType = "input_rejected"
	ErrorTypeToolchainMissing    ErrorType = "toolchain_missing"
	ErrorTypeMetadataUnavailable ErrorType = "metadata_unavailable"
	ErrorTypePageRender          ErrorType = "page_render"
	ErrorTypeReassembly          ErrorType = "reassembly"
	ErrorTypeCleanup             ErrorType = "cleanup"
	ErrorTypeConfig              ErrorType = "config"
	ErrorTypeCanceled            ErrorType = "canceled"
)

// Error represents a flattening failure with its category and cause.
// Page is the 1-based ordinal for page render failures and 0 otherwise.
type Error struct {
	Type    ErrorType
	Message string
	Page    int
	Err     error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Type)
	if e.Page > 0 {
		prefix = fmt.Sprintf("[%s page=%d]", e.Type, e.Page)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Hint returns the remediation shown to users. Causal detail stays in logs.
func (e *Error) Hint() string {
	return Hint(e.Type)
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func InputRejected(message string, err error) *Error {
	return NewError(ErrorTypeInputRejected, message, err)
}

func ToolchainMissing(message string, err error) *Error {
	return NewError(ErrorTypeToolchainMissing, message, err)
}

func MetadataUnavailable(message string, err error) *Error {
	return NewError(ErrorTypeMetadataUnavailable, message, err)
}

func PageRenderFailure(ordinal int, err error) *Error {
	e := NewError(ErrorTypePageRender, "failed to render page", err)
	e.Page = ordinal
	return e
}

func ReassemblyFailure(message string, err error) *Error {
	return NewError(ErrorTypeReassembly, message, err)
}

func CleanupFailure(message string, err error) *Error {
	return NewError(ErrorTypeCleanup, message, err)
}

func ConfigError(message string, err error) *Error {
	return NewError(ErrorTypeConfig, message, err)
}

func Canceled(err error) *Error {
	return NewError(ErrorTypeCanceled, "run canceled", err)
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// TypeOf returns the category of err, or "" when err is not a domain error.
func TypeOf(err error) ErrorType {
	if de, ok := AsError(err); ok {
		return de.Type
	}
	return ""
}

// IsType reports whether err carries the given category.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// Hint maps a category to an actionable message.
func Hint(t ErrorType) string {
	switch t {
	case ErrorTypeInputRejected:
		return "File rejected. Upload a PDF under the size limit and keep DPI and quality within range."
	case ErrorTypeToolchainMissing:
		return "PDF renderer not found. Install poppler-utils and make sure pdfinfo and pdftoppm are on the search path."
	case ErrorTypeMetadataUnavailable:
		return "Could not read the page count. The PDF may be damaged or password protected."
	case ErrorTypePageRender:
		return "A page failed to render. Lower the DPI or image quality and try again."
	case ErrorTypeReassembly:
		return "Could not assemble the flattened PDF. Lower the DPI or image quality and try again."
	case ErrorTypeCanceled:
		return "Flattening was canceled."
	case ErrorTypeConfig:
		return "Invalid configuration."
	default:
		return "Flattening failed. Lower the DPI or check the renderer installation."
	}
}
