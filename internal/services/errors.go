package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers classifying pipeline failures (§7 taxonomy).
var (
	// ErrTransient marks failures worth retrying (timeouts, rate limits).
	ErrTransient = errors.New("transient failure")
	// ErrPartialData marks per-window or per-segment data gaps that are
	// logged and skipped without failing the job.
	ErrPartialData = errors.New("partial data")
	// ErrConfiguration marks bad input that fails the job immediately.
	ErrConfiguration = errors.New("configuration error")
	// ErrExternalTool marks subprocess failures (non-zero transcoder exit).
	ErrExternalTool = errors.New("external tool error")
	// ErrNotFound marks missing records or files.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTerminal reports whether an error should fail the job outright rather
// than be retried or skipped.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrExternalTool)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
