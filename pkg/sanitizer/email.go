package sanitizer

import (
	"regexp"
	"strings"
)

var dotRegex = regexp.MustCompile(`\.{2,}`)

// NormalizeEmail lowercases and trims an email address and consolidates
// consecutive dots in the local part, which cause delivery issues with some
// providers. Input that is not shaped like an email is returned trimmed and
// lowercased so validation can reject it with the original intent visible.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	local := dotRegex.ReplaceAllString(parts[0], ".")
	local = strings.Trim(local, ".")

	return local + "@" + parts[1]
}

// ExtractEmailDomain returns the lowercased domain part of an email address,
// or an empty string when the input is not a plausible address.
func ExtractEmailDomain(email string) string {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return strings.ToLower(parts[1])
}

// MaskEmail hides the local part of an address while preserving the domain,
// suitable for log output and user-facing confirmation copy.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}

	local := parts[0]
	switch {
	case local == "":
		return email
	case len(local) == 1:
		return "*@" + parts[1]
	default:
		return string(local[0]) + strings.Repeat("*", len(local)-1) + "@" + parts[1]
	}
}
