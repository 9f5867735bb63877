package sanitizer

import (
	"net/url"
	"strings"
)

// SanitizeRedirectPath reduces a caller-supplied post-auth redirect target to a
// same-origin relative path. Anything that could cause an open redirect,
// absolute URLs, protocol-relative targets ("//evil.com"), scheme smuggling,
// backslash variants and path traversal, yields an empty string so the caller
// falls back to its default destination.
func SanitizeRedirectPath(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}

	// Browsers treat backslashes as forward slashes in URLs, so a target like
	// "/\evil.com" would escape the origin after normalization.
	if strings.ContainsAny(target, "\\\r\n\x00") {
		return ""
	}

	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return ""
	}

	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	if u.Scheme != "" || u.Host != "" || u.User != nil {
		return ""
	}

	if strings.Contains(u.Path, "..") {
		return ""
	}

	clean := u.Path
	if u.RawQuery != "" {
		clean += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		clean += "#" + u.Fragment
	}
	return clean
}
