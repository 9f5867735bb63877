package sanitizer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// NormalizeName trims a person-name field, collapses internal whitespace and
// applies title casing, so "  jOHN   doE " becomes "John Doe". Used on
// profile seed fields before they reach the profile store.
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	for i, f := range fields {
		fields[i] = titleCaser.String(strings.ToLower(f))
	}
	return strings.Join(fields, " ")
}
