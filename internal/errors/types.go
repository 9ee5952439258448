package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ErrorTypeStructural covers malformed directives and invalid render arguments.
	ErrorTypeStructural ErrorType = "structural"
	// ErrorTypeReference covers names that do not resolve.
	ErrorTypeReference ErrorType = "reference"
	// ErrorTypeGrammar covers condition strings outside the accepted grammar.
	ErrorTypeGrammar ErrorType = "grammar"

	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeMissingAttribute  = "ERR_MISSING_ATTRIBUTE"
	ErrCodeInvalidRepeat     = "ERR_INVALID_REPEAT"
	ErrCodeNotIterable       = "ERR_NOT_ITERABLE"
	ErrCodeOrphanElse        = "ERR_ORPHAN_ELSE"
	ErrCodeInvalidTemplate   = "ERR_INVALID_TEMPLATE"
	ErrCodeInvalidContext    = "ERR_INVALID_CONTEXT"
	ErrCodeInsertCycle       = "ERR_INSERT_CYCLE"
	ErrCodeDepthExceeded     = "ERR_DEPTH_EXCEEDED"
	ErrCodeUndefinedVariable = "ERR_UNDEFINED_VARIABLE"
	ErrCodeUnknownTemplate   = "ERR_UNKNOWN_TEMPLATE"
	ErrCodeBannedCharacter   = "ERR_BANNED_CHARACTER"
	ErrCodeInvalidOperand    = "ERR_INVALID_OPERAND"
	ErrCodeInvalidPath       = "ERR_INVALID_PATH"
	ErrCodePathTraversal     = "ERR_PATH_TRAVERSAL"
	ErrCodeFileNotFound      = "ERR_FILE_NOT_FOUND"
	ErrCodeInvalidData       = "ERR_INVALID_DATA"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeValidationFailed  = "ERR_VALIDATION_FAILED"
	ErrCodeDuplicateTemplate = "ERR_DUPLICATE_TEMPLATE"
	ErrCodeStoreUnavailable  = "ERR_STORE_UNAVAILABLE"
	ErrCodePublishFailed     = "ERR_PUBLISH_FAILED"
	ErrCodeInternalError     = "ERR_INTERNAL"
)

// FillError is a structured error with the directive and template it was
// raised for.
type FillError struct {
	Type      ErrorType
	Code      string
	Message   string
	Directive string
	Template  string
	FilePath  string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *FillError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Template != "" {
		parts = append(parts, "template:"+e.Template)
	}

	if e.Directive != "" {
		parts = append(parts, "<"+e.Directive+">")
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *FillError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *FillError) Is(target error) bool {
	var t *FillError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *FillError) WithContext(key string, value interface{}) *FillError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithDirective records the directive tag the error was raised for.
func (e *FillError) WithDirective(tag string) *FillError {
	e.Directive = tag

	return e
}

// WithTemplate records the template id, unless one is already set by a
// deeper render.
func (e *FillError) WithTemplate(id string) *FillError {
	if e.Template == "" {
		e.Template = id
	}

	return e
}

// WithFile records the file the error relates to.
func (e *FillError) WithFile(path string) *FillError {
	e.FilePath = path

	return e
}

// NewStructuralError creates a structural error.
func NewStructuralError(code, message string) *FillError {
	return &FillError{Type: ErrorTypeStructural, Code: code, Message: message}
}

// NewReferenceError creates a reference error.
func NewReferenceError(code, message string) *FillError {
	return &FillError{Type: ErrorTypeReference, Code: code, Message: message}
}

// NewGrammarError creates a grammar error.
func NewGrammarError(code, message string) *FillError {
	return &FillError{Type: ErrorTypeGrammar, Code: code, Message: message}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *FillError {
	return &FillError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *FillError {
	return &FillError{Type: ErrorTypeSecurity, Code: code, Message: message}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *FillError {
	return &FillError{Type: ErrorTypeIO, Code: code, Message: message, Cause: cause}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *FillError {
	return &FillError{Type: ErrorTypeConfig, Code: code, Message: message}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *FillError {
	return &FillError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// TypeOf returns the type of the outermost FillError in err's chain, or the
// empty string when there is none.
func TypeOf(err error) ErrorType {
	var fe *FillError
	if errors.As(err, &fe) {
		return fe.Type
	}

	return ""
}

// IsStructuralError checks if an error is a structural render error.
func IsStructuralError(err error) bool {
	return TypeOf(err) == ErrorTypeStructural
}

// IsReferenceError checks if an error is an unresolved reference.
func IsReferenceError(err error) bool {
	return TypeOf(err) == ErrorTypeReference
}

// IsGrammarError checks if an error is a rejected condition.
func IsGrammarError(err error) bool {
	return TypeOf(err) == ErrorTypeGrammar
}

// IsRenderError checks if an error was raised by the engine.
func IsRenderError(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeStructural, ErrorTypeReference, ErrorTypeGrammar:
		return true
	}

	return false
}

// IsSecurityError checks if an error is security-related.
func IsSecurityError(err error) bool {
	return TypeOf(err) == ErrorTypeSecurity
}

// Wrap wraps err as a FillError of the given type. An existing FillError
// keeps its directive and template.
func Wrap(err error, errType ErrorType, code, message string) *FillError {
	if err == nil {
		return nil
	}

	wrapped := &FillError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}

	var fe *FillError
	if errors.As(err, &fe) {
		wrapped.Directive = fe.Directive
		wrapped.Template = fe.Template
		wrapped.FilePath = fe.FilePath
	}

	return wrapped
}

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *FillError {
	return NewValidationError(ErrCodeInvalidPath, "invalid path: "+path)
}

// ErrPathTraversal creates a path traversal security error.
func ErrPathTraversal(path string) *FillError {
	return NewSecurityError(ErrCodePathTraversal, "path traversal attempt: "+path)
}

// ErrTemplateNotFound creates an unknown template reference error.
func ErrTemplateNotFound(id string) *FillError {
	return NewReferenceError(ErrCodeUnknownTemplate, "template not found: "+id).
		WithContext("id", id)
}
