package types

import (
	"regexp"
	"strings"
	"time"
)

// Field constraints shared by the API validator and the services.
const (
	UsernameMinLength = 3
	UsernameMaxLength = 30
	NameMaxLength     = 100
	BioMaxLength      = 200
	CategoryMaxLength = 50
	LinkMaxLength     = 500
	PhoneMaxLength    = 20
	TipMessageMaxLen  = 500

	// PromoMonths is the length of the promotional creator period.
	PromoMonths = 3
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	linkPattern     = regexp.MustCompile(`^https?://.+`)
	phonePattern    = regexp.MustCompile(`^[+\d\s()-]+$`)
)

// NormalizeUsername lowercases and trims a username for storage and lookup.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsValidUsername checks length and character set.
func IsValidUsername(s string) bool {
	return len(s) >= UsernameMinLength && len(s) <= UsernameMaxLength && usernamePattern.MatchString(s)
}

// IsValidEmail applies the loose address check used across signup forms.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsValidLink accepts http and https URLs.
func IsValidLink(s string) bool {
	return linkPattern.MatchString(s)
}

// IsValidPhone accepts digits, spaces, parentheses, dashes and a leading plus.
func IsValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// PromoPeriodEnd is the end of the promotional period starting at t.
// Month overflow normalizes the way time.AddDate does (Jan 31 + 3 months is May 1).
func PromoPeriodEnd(t time.Time) time.Time {
	return t.AddDate(0, PromoMonths, 0)
}

// ValidationError is one itemized field failure, reported under
// details.validation_errors.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
