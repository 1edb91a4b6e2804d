// Package errors sanitizes error messages before they leave the service.
package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	filePathPattern = regexp.MustCompile(`(/[a-zA-Z0-9_\-./]+)|([A-Z]:\\[a-zA-Z0-9_\-\\ ./]+)`)

	ipPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

	// Driver and connection details that must never reach a client.
	internalErrorPattern = regexp.MustCompile(`(?i)(sql:|sqlite|clickhouse|redis:|kafka:|connection string|dial tcp|password=|secret=|token=|api[_-]?key=)`)
)

// ProductionMode enables sanitization. In development original messages pass
// through for debugging.
var ProductionMode = false

// SetProductionMode sets the sanitization flag. Called once during startup.
func SetProductionMode(production bool) {
	ProductionMode = production
}

// SanitizeError strips sensitive detail from an error before it is returned
// to a client. Nil in, nil out.
func SanitizeError(err error) error {
	if err == nil {
		return nil
	}
	if !ProductionMode {
		return err
	}
	return errors.New(SanitizeString(err.Error()))
}

// SanitizeString strips file paths, masks IP addresses and replaces backend
// driver detail with a generic message.
func SanitizeString(s string) string {
	if !ProductionMode {
		return s
	}

	s = filePathPattern.ReplaceAllStringFunc(s, func(match string) string {
		return filepath.Base(match)
	})

	// Keep the first two octets for debugging context.
	s = ipPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := strings.Split(match, ".")
		if len(parts) == 4 {
			return fmt.Sprintf("%s.%s.x.x", parts[0], parts[1])
		}
		return "x.x.x.x"
	})

	if internalErrorPattern.MatchString(s) {
		s = "backend operation failed"
	}

	if strings.Contains(s, "goroutine") || strings.Count(s, "\n") > 3 {
		s = "internal server error"
	}

	return s
}

// userFacingErrors are messages safe to pass through unchanged.
var userFacingErrors = []string{
	"validation failed",
	"playbook not found",
	"playbook name already in use",
	"simulation run not found",
	"baseline data unavailable",
	"invalid request",
	"unauthorized",
	"forbidden",
	"not found",
	"too many requests",
}

// SafeErrorMessage returns a client-safe message for an error. Known
// user-facing messages pass through, everything else gets sanitized.
func SafeErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, safe := range userFacingErrors {
		if strings.Contains(lower, safe) {
			return msg
		}
	}
	return SanitizeString(msg)
}
