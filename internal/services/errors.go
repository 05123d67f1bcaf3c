package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrParse         = errors.New("parse error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
	ErrAuth          = errors.New("authentication error")
	ErrUnavailable   = errors.New("service unavailable")
	ErrExternalTool  = errors.New("external tool error")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error to the stable kind string persisted with stage results.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrAuth):
		return "auth_error"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transient"
	}
}

// IsFatalToRun reports whether a stage error must fail the whole run.
// Post-processing callers check this to keep auth/availability failures
// recoverable while everything else aborts.
func IsFatalToRun(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrAuth) && !errors.Is(err, ErrUnavailable)
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
