// Package sanitizer normalizes user-supplied identifiers before validation
// and storage so that lookups are case- and whitespace-insensitive.
package sanitizer

import (
	"regexp"
	"strings"
)

var dotRun = regexp.MustCompile(`\.{2,}`)

// NormalizeEmail lowercases and trims an email address and collapses repeated
// dots in the local part. Invalid shapes are returned trimmed and lowercased;
// validation is the validator package's job.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	local := dotRun.ReplaceAllString(parts[0], ".")
	local = strings.Trim(local, ".")

	return local + "@" + parts[1]
}

// NormalizeUsername trims surrounding whitespace and lowercases a username.
// Usernames are matched case-insensitively at the store boundary.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
