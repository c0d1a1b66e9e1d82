package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExecution     = errors.New("execution error")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExecution
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorKind maps a stage error to the kind recorded on its stage result.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout_error"
	case errors.Is(err, ErrTransient):
		return "transient_error"
	default:
		return "execution_error"
	}
}

// IsRetryable reports whether a stage error is eligible for another attempt.
// Timeouts consume the stage's whole time budget and are not retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// ErrorDetails carries the classified kind and trimmed message of a stage error.
type ErrorDetails struct {
	Kind    string
	Message string
}

// Details classifies err and strips the sentinel prefix from its message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := ErrorKind(err)
	message := strings.TrimSpace(err.Error())
	for _, sentinel := range []error{ErrExecution, ErrTimeout, ErrTransient, ErrValidation, ErrConfiguration, ErrNotFound} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(message, prefix) {
			message = strings.TrimSpace(strings.TrimPrefix(message, prefix))
			break
		}
	}
	return ErrorDetails{Kind: kind, Message: message}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
