package pkg

import "strings"

const maxSanitizedLen = 120

// SanitizeLabel turns an arbitrary event label into a name safe to use as
// a file name component. Runs of unsafe characters collapse into a single
// dash and overly long labels are truncated. An empty result falls back
// to "event".
func SanitizeLabel(label string) string {
	var b strings.Builder

	lastDash := true // swallow leading dashes

	for _, r := range label {
		safe := r == '.' || r == '_' ||
			(r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z')

		switch {
		case safe:
			b.WriteRune(r)

			lastDash = false
		case !lastDash:
			b.WriteByte('-')

			lastDash = true
		}
	}

	out := strings.TrimRight(b.String(), "-")

	if len(out) > maxSanitizedLen {
		out = strings.TrimRight(out[:maxSanitizedLen], "-.")
	}

	if out == "" {
		return "event"
	}

	return out
}
