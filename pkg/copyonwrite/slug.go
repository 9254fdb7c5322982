package copyonwrite

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// newSlug builds a URL slug for a forked resource: the slugified title plus
// a short random suffix so copies never collide with the original or with
// other households' copies.
func newSlug(title string) string {
	base := slugify(title)
	suffix := uuid.New().String()[:8]
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
