package parameter

import "strings"

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Sanitize removes ASCII control characters other than tab, newline and
// carriage return, then normalizes line endings to \n and trims surrounding
// whitespace. Stripping first keeps a control byte sitting between \r and \n
// from turning one line break into two.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r <= 0x1F || r == 0x7F:
			return -1
		}
		return r
	}, s)
	s = lineEndings.Replace(s)
	return strings.TrimSpace(s)
}
