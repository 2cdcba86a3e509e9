package validator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	uppercaseRegex   = regexp.MustCompile(`[A-Z]`)
	lowercaseRegex   = regexp.MustCompile(`[a-z]`)
	digitRegex       = regexp.MustCompile(`[0-9]`)
	specialCharRegex = regexp.MustCompile(`[^a-zA-Z0-9]`)

	// The short tail of every breached-password list. Not exhaustive; the
	// character-class rules carry most of the weight.
	commonPasswords = map[string]bool{
		"password":   true,
		"password1":  true,
		"passw0rd":   true,
		"123456":     true,
		"12345678":   true,
		"123456789":  true,
		"qwerty":     true,
		"qwerty123":  true,
		"abc123":     true,
		"abcd1234":   true,
		"letmein":    true,
		"welcome":    true,
		"welcome1":   true,
		"iloveyou":   true,
		"admin":      true,
		"admin123":   true,
		"monkey":     true,
		"dragon":     true,
		"sunshine":   true,
		"princess":   true,
		"football":   true,
		"baseball":   true,
		"trustno1":   true,
		"1q2w3e4r":   true,
		"zaq12wsx":   true,
		"qazwsx":     true,
		"654321":     true,
		"changeme":   true,
		"secret":     true,
		"superman":   true,
	}
)

// PasswordStrengthConfig controls the StrongPassword rule.
type PasswordStrengthConfig struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigits    bool
	RequireSpecial   bool
	MinCharClasses   int // Minimum number of different character classes required
}

// DefaultPasswordStrength returns an 8-128 character policy requiring at
// least two character classes.
func DefaultPasswordStrength() PasswordStrengthConfig {
	return PasswordStrengthConfig{
		MinLength:      8,
		MaxLength:      128,
		MinCharClasses: 2,
	}
}

// StrongPassword validates password length and character-class composition.
func StrongPassword(field, value string, config PasswordStrengthConfig) Rule {
	return Rule{
		Check: func() bool {
			if len(value) < config.MinLength || len(value) > config.MaxLength {
				return false
			}

			hasUpper := uppercaseRegex.MatchString(value)
			hasLower := lowercaseRegex.MatchString(value)
			hasDigit := digitRegex.MatchString(value)
			hasSpecial := specialCharRegex.MatchString(value)

			charClasses := 0
			for _, has := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
				if has {
					charClasses++
				}
			}

			if config.RequireUppercase && !hasUpper {
				return false
			}
			if config.RequireLowercase && !hasLower {
				return false
			}
			if config.RequireDigits && !hasDigit {
				return false
			}
			if config.RequireSpecial && !hasSpecial {
				return false
			}

			return charClasses >= config.MinCharClasses
		},
		Error: ValidationError{
			Field:   field,
			Message: fmt.Sprintf("password must be %d-%d characters with required character types", config.MinLength, config.MaxLength),
		},
	}
}

// NotCommonPassword rejects passwords from the common-password list.
func NotCommonPassword(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return !commonPasswords[strings.ToLower(value)]
		},
		Error: ValidationError{
			Field:   field,
			Message: "password is too common, please choose a different one",
		},
	}
}
