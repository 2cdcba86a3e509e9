package validator

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// RequiredString validates that a string is not empty after trimming.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return strings.TrimSpace(value) != ""
		},
		Error: ValidationError{
			Field:   field,
			Message: "is required",
		},
	}
}

// ValidEmail validates that a string is a usable email address.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if strings.TrimSpace(value) == "" {
				return false
			}

			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				return false
			}

			parts := strings.Split(value, "@")
			if len(parts) != 2 || parts[0] == "" {
				return false
			}

			// RFC 5322 allows dotless domains; web-facing systems do not.
			domain := parts[1]
			if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
				return false
			}

			return true
		},
		Error: ValidationError{
			Field:   field,
			Message: "must be a valid email address",
		},
	}
}

// ValidUsername validates length and the allowed character set
// (letters, numbers, underscores, hyphens).
func ValidUsername(field, value string, minLen, maxLen int) Rule {
	return Rule{
		Check: func() bool {
			if strings.TrimSpace(value) == "" {
				return false
			}
			if len(value) < minLen || len(value) > maxLen {
				return false
			}
			return usernameRegex.MatchString(value)
		},
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be %d-%d characters and contain only letters, numbers, underscores, and hyphens", minLen, maxLen),
		},
	}
}
