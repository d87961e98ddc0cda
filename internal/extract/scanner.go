package extract

import "strings"

// scanState is the position of ScanQuoted's walk relative to escapes.
type scanState int

const (
	inSpan scanState = iota
	seeingBackslash
	matchedTerminator
)

// ScanQuoted reads a single-quoted value starting at start, the offset just
// past the opening quote. The span closes at the first unescaped quote that
// is followed by optional whitespace and one of ',', '}' or ']'. Quotes that
// are not followed by a terminator are treated as content.
//
// It returns the decoded value and the offset just past the closing quote.
// ok is false when no closing quote exists.
func ScanQuoted(buf string, start int) (text string, end int, ok bool) {
	if start < 0 || start > len(buf) {
		return "", 0, false
	}

	state := inSpan
	i := start
	for ; i < len(buf) && state != matchedTerminator; i++ {
		switch state {
		case seeingBackslash:
			state = inSpan
		case inSpan:
			switch buf[i] {
			case '\\':
				state = seeingBackslash
			case '\'':
				if terminatorFollows(buf, i+1) {
					state = matchedTerminator
				}
			}
		}
	}
	if state != matchedTerminator {
		return "", 0, false
	}

	// i was advanced past the closing quote by the loop post statement.
	return Unescape(buf[start : i-1]), i, true
}

// terminatorFollows reports whether buf[at:] is optional whitespace followed
// by ',', '}' or ']'.
func terminatorFollows(buf string, at int) bool {
	for ; at < len(buf); at++ {
		switch buf[at] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			continue
		case ',', '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}

// Unescape decodes \' to ' and \\ to \ in one left-to-right pass. Any other
// backslash is kept as-is.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '\'' || s[i+1] == '\\') {
			sb.WriteByte(s[i+1])
			i++
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
