// Package errors classifies failures by layer so callers and the HTTP
// layer can react to them without string matching.
package errors

import (
	errs "errors"
	"fmt"
	"runtime"
	"strings"
)

type ErrorLevel string

func (e ErrorLevel) String() string {
	return string(e)
}

const (
	ERR_INFRASTRUCTURE ErrorLevel = "infrastructure"
	ERR_APPLICATION    ErrorLevel = "application"
	ERR_DOMAIN         ErrorLevel = "domain"
	ERR_VALIDATION     ErrorLevel = "validation"
	ERR_UNKNOWN        ErrorLevel = "unknown"
	ERR_AUTH           ErrorLevel = "auth"
	ERR_PERMISSION     ErrorLevel = "permission"
)

// ExtendError carries a level, an optional machine code and metadata on
// top of the wrapped error.
type ExtendError struct {
	Level      ErrorLevel     `json:"level"`
	Err        error          `json:"error"`
	Code       string         `json:"code,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	StackTrace string         `json:"-"`
}

func (e *ExtendError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Err.Error())
	}
	return e.Err.Error()
}

func (e *ExtendError) Unwrap() error {
	return e.Err
}

func (e *ExtendError) WithCode(code string) *ExtendError {
	e.Code = code
	return e
}

func (e *ExtendError) WithMetadata(key string, value any) *ExtendError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

func New(message string) error {
	return errs.New(message)
}

// Is reports whether err matches target. The argument order mirrors the
// rest of this package's helpers: target first.
func Is(target, err error) bool {
	return errs.Is(err, target)
}

func As(err error, target any) bool {
	return errs.As(err, target)
}

func Join(list ...error) error {
	return errs.Join(list...)
}

func IsExtendError(err error) bool {
	var extendErr *ExtendError
	return errs.As(err, &extendErr)
}

// Extend returns the outermost ExtendError in err's chain.
func Extend(err error) (*ExtendError, bool) {
	var extendErr *ExtendError
	if errs.As(err, &extendErr) {
		return extendErr, true
	}
	return nil, false
}

func captureStackTrace() string {
	var sb strings.Builder
	// skip captureStackTrace, wrap and the level constructor
	for i := 3; i < 15; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fmt.Fprintf(&sb, "%s:%d\n", file, line)
	}
	return sb.String()
}

func wrap(err error, level ErrorLevel) *ExtendError {
	// Keep the first classification, it was made closest to the failure.
	if extendErr, ok := err.(*ExtendError); ok {
		return extendErr
	}
	return &ExtendError{
		Level:      level,
		Err:        err,
		StackTrace: captureStackTrace(),
	}
}

func InfraError(err error) *ExtendError {
	return wrap(err, ERR_INFRASTRUCTURE)
}

func AppError(err error) *ExtendError {
	return wrap(err, ERR_APPLICATION)
}

func DomainError(err error) *ExtendError {
	return wrap(err, ERR_DOMAIN)
}

func ValidationError(err error) *ExtendError {
	return wrap(err, ERR_VALIDATION)
}

func UnknownError(err error) *ExtendError {
	return wrap(err, ERR_UNKNOWN)
}

func AuthError(err error) *ExtendError {
	return wrap(err, ERR_AUTH)
}

func PermissionError(err error) *ExtendError {
	return wrap(err, ERR_PERMISSION)
}

// GetLevel returns the level of the outermost ExtendError, ERR_UNKNOWN otherwise.
func GetLevel(err error) ErrorLevel {
	if extendErr, ok := Extend(err); ok {
		return extendErr.Level
	}
	return ERR_UNKNOWN
}

// GetCode returns the code of the outermost ExtendError, if any.
func GetCode(err error) string {
	if extendErr, ok := Extend(err); ok {
		return extendErr.Code
	}
	return ""
}

func levelOf(err *ExtendError) ErrorLevel {
	if err == nil {
		return ERR_UNKNOWN
	}
	return err.Level
}

func IsInfraError(err *ExtendError) bool {
	return levelOf(err) == ERR_INFRASTRUCTURE
}
func IsAppError(err *ExtendError) bool {
	return levelOf(err) == ERR_APPLICATION
}
func IsAuthError(err *ExtendError) bool {
	return levelOf(err) == ERR_AUTH
}
func IsPermissionError(err *ExtendError) bool {
	return levelOf(err) == ERR_PERMISSION
}
func IsDomainError(err *ExtendError) bool {
	return levelOf(err) == ERR_DOMAIN
}
func IsValidationError(err *ExtendError) bool {
	return levelOf(err) == ERR_VALIDATION
}
func IsUnknownError(err *ExtendError) bool {
	return levelOf(err) == ERR_UNKNOWN
}
