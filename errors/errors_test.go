package errors_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	commonErrors "github.com/Deepreo/cronkit/errors"
)

func TestExtendError(t *testing.T) {
	baseErr := errors.New("base error")

	t.Run("Wrap and Unwrap", func(t *testing.T) {
		infraErr := commonErrors.InfraError(baseErr)

		if !commonErrors.Is(baseErr, infraErr) {
			t.Error("Expected infraErr to be baseErr")
		}

		if !errors.Is(infraErr, baseErr) {
			t.Error("Expected infraErr to wrap baseErr")
		}

		unwrapped := errors.Unwrap(infraErr)
		if unwrapped != baseErr {
			t.Errorf("Expected unwrapped error to be baseErr, got %v", unwrapped)
		}
	})

	t.Run("Code and Metadata", func(t *testing.T) {
		err := commonErrors.AppError(baseErr).
			WithCode("APP_ERR_001").
			WithMetadata("userID", 123)

		if err.Code != "APP_ERR_001" {
			t.Errorf("Expected code 'APP_ERR_001', got %s", err.Code)
		}

		if val, ok := err.Metadata["userID"]; !ok || val != 123 {
			t.Errorf("Expected metadata userID=123, got %v", val)
		}

		expectedMsg := "[APP_ERR_001] base error"
		if err.Error() != expectedMsg {
			t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
		}
	})

	t.Run("StackTrace", func(t *testing.T) {
		err := commonErrors.DomainError(baseErr)
		if err.StackTrace == "" {
			t.Error("Expected stack trace to be present")
		}
		if !strings.Contains(err.StackTrace, "errors_test.go") {
			t.Error("Expected stack trace to contain test file name")
		}
	})

	t.Run("First classification wins", func(t *testing.T) {
		err := commonErrors.InfraError(commonErrors.ValidationError(baseErr))
		if !commonErrors.IsValidationError(err) {
			t.Errorf("Expected validation level, got %s", err.Level)
		}
	})

	t.Run("Level and code through fmt wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("register: %w", commonErrors.InfraError(baseErr).WithCode("ENGINE"))

		if got := commonErrors.GetLevel(wrapped); got != commonErrors.ERR_INFRASTRUCTURE {
			t.Errorf("Expected infrastructure level, got %s", got)
		}
		if got := commonErrors.GetCode(wrapped); got != "ENGINE" {
			t.Errorf("Expected code ENGINE, got %q", got)
		}
		if got := commonErrors.GetLevel(baseErr); got != commonErrors.ERR_UNKNOWN {
			t.Errorf("Expected unknown level for plain error, got %s", got)
		}
	})

	t.Run("Helper Functions", func(t *testing.T) {
		if !commonErrors.IsInfraError(commonErrors.InfraError(baseErr)) {
			t.Error("Expected IsInfraError to return true")
		}
		if !commonErrors.IsAppError(commonErrors.AppError(baseErr)) {
			t.Error("Expected IsAppError to return true")
		}
		if !commonErrors.IsUnknownError(nil) {
			t.Error("Expected nil ExtendError to report unknown level")
		}
	})
}
