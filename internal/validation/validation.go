// Package validation checks user input before it reaches the store or an agent.
// Service names and search terms end up on a remote compose command line,
// so they are restricted to characters the agent shell passes through as-is.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// isAlphaNum returns true if the byte is an ASCII letter or digit.
func isAlphaNum(b byte) bool {
	return isAlpha(b) || isNum(b)
}

// ValidateServiceName validates a compose service name.
// It must start with a letter or digit and contain only letters, digits,
// underscores, periods or hyphens.
func ValidateServiceName(name string) error {
	if name == "" {
		return NewValidationError("service", name, "must not be empty")
	}
	if !isAlphaNum(name[0]) {
		return NewValidationError("service", name, "must start with a letter or digit")
	}
	for _, b := range []byte(name) {
		if !isAlphaNum(b) && b != '_' && b != '.' && b != '-' {
			return NewValidationError("service", name, "can only contain letters, digits, '_', '.' or '-'")
		}
	}
	return nil
}

// ValidateTimeout validates a stop timeout in seconds.
func ValidateTimeout(seconds int) error {
	if seconds < 0 {
		return NewValidationError("stop_time", fmt.Sprint(seconds), "must not be negative")
	}
	return nil
}

// ValidateResourceName validates a stack, server, user or group name.
func ValidateResourceName(field, name string) error {
	if name == "" {
		return NewValidationError(field, name, "must not be empty")
	}
	if strings.TrimSpace(name) != name {
		return NewValidationError(field, name, "must not start or end with whitespace")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return NewValidationError(field, name, "must not contain control characters")
		}
	}
	return nil
}

// ValidateSearchTerms validates log search terms.
func ValidateSearchTerms(terms []string) error {
	if len(terms) == 0 {
		return NewValidationError("terms", "", "at least one term is required")
	}
	var errs ValidationErrors
	for _, term := range terms {
		if term == "" {
			errs.Add("terms", term, "must not be empty")
			continue
		}
		if strings.ContainsAny(term, "\x00\n\r") {
			errs.Add("terms", term, "must not contain newlines or NUL")
		}
	}
	return errs.Err()
}

// ValidateServerAddress validates an agent base URL.
func ValidateServerAddress(addr string) error {
	if addr == "" {
		return NewValidationError("address", addr, "must not be empty")
	}
	u, err := url.Parse(addr)
	if err != nil {
		return NewValidationError("address", addr, "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewValidationError("address", addr, "must use http or https")
	}
	if u.Host == "" {
		return NewValidationError("address", addr, "must include a host")
	}
	return nil
}
