// Package extract recovers the user prompt and assistant response from
// conversation payloads serialized as loosely quoted Python-style literals,
// e.g. [{'role': 'user', 'content': [{'type': 'text', 'text': 'hi'}]}, ...].
//
// Extraction is best effort: each field is found by an ordered chain of
// pattern strategies and the first one that matches wins. A payload that
// matches none of them yields an empty string, never an error.
package extract

import (
	"regexp"
	"strings"
)

// strategy tries to pull one field out of a payload. ok reports whether the
// strategy matched; a match with an empty value still ends the chain.
type strategy func(payload string) (value string, ok bool)

var (
	// textOpen matches a text key up to and including its opening quote.
	textOpen = regexp.MustCompile(`'text':\s*'`)

	userQuoted      = regexp.MustCompile(`(?s)'role':\s*['"]?user['"]?[^}]*'text':\s*'((?:[^'\\]|\\.)*)'`)
	userPrefix      = regexp.MustCompile(`'role':\s*['"]?user['"]?[^}]*'text':\s*`)
	assistantQuoted = regexp.MustCompile(`(?s)'role':\s*['"]?assistant['"]?[^}]*'text':\s*'((?:[^'\\]|\\.)*)'`)
)

var userChain = []strategy{
	userQuotedText,
	userUnquotedText,
}

var assistantChain = []strategy{
	assistantBlockText,
	assistantLastQuotedText,
	lastTextField,
}

// UserPrompt returns the text of the user turn in payload, or "" when no
// user text can be found.
func UserPrompt(payload string) string {
	return run(payload, userChain)
}

// AssistantResponse returns the text of the assistant turn in payload, or ""
// when no assistant text can be found. When several assistant turns are
// present the last one wins.
func AssistantResponse(payload string) string {
	return run(payload, assistantChain)
}

// run tries each strategy in order. A panicking strategy is treated as the
// whole field being unrecoverable.
func run(payload string, chain []strategy) (value string) {
	if payload == "" {
		return ""
	}
	defer func() {
		if recover() != nil {
			value = ""
		}
	}()

	for _, try := range chain {
		if v, ok := try(payload); ok {
			return v
		}
	}
	return ""
}

func userQuotedText(payload string) (string, bool) {
	m := userQuoted.FindStringSubmatch(payload)
	if m == nil {
		return "", false
	}
	return Unescape(m[1]), true
}

// userUnquotedText handles 'text': hello there, 'image': None where the value
// was written without quotes. The value runs until a following image or
// num_tokens key or a closing brace or bracket. It is returned trimmed and
// without unescaping.
func userUnquotedText(payload string) (string, bool) {
	for _, loc := range userPrefix.FindAllStringIndex(payload, -1) {
		start := loc[1]
		runEnd := strings.IndexAny(payload[start:], ",}")
		if runEnd < 0 {
			runEnd = len(payload)
		} else {
			runEnd += start
		}
		for p := start + 1; p <= runEnd; p++ {
			if unquotedStopAt(payload, p) {
				return strings.TrimSpace(payload[start:p]), true
			}
		}
	}
	return "", false
}

// unquotedStopAt reports whether an unquoted value may end at offset p.
func unquotedStopAt(s string, p int) bool {
	p = skipSpace(s, p)
	if p >= len(s) {
		return false
	}
	switch s[p] {
	case '}', ']':
		return true
	case ',':
	default:
		return false
	}

	p = skipSpace(s, p+1)
	if p >= len(s) || (s[p] != '\'' && s[p] != '"') {
		return false
	}
	rest := s[p+1:]
	for _, key := range []string{"image", "num_tokens"} {
		if strings.HasPrefix(rest, key) && len(rest) > len(key) {
			if q := rest[len(key)]; q == '\'' || q == '"' {
				return true
			}
		}
	}
	return false
}

func skipSpace(s string, p int) int {
	for p < len(s) {
		switch s[p] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p++
		default:
			return p
		}
	}
	return p
}

// assistantBlockText isolates the assistant content list and scans the first
// text value inside it.
func assistantBlockText(payload string) (string, bool) {
	block, ok := LocateRoleBlock(payload, RoleAssistant)
	if !ok {
		return "", false
	}
	loc := textOpen.FindStringIndex(block)
	if loc == nil {
		return "", false
	}
	text, _, ok := ScanQuoted(block, loc[1])
	return text, ok
}

// assistantLastQuotedText takes the last assistant text across the payload.
// Later turns are serialized later, so the last match is the final answer.
func assistantLastQuotedText(payload string) (string, bool) {
	matches := assistantQuoted.FindAllStringSubmatch(payload, -1)
	if len(matches) == 0 {
		return "", false
	}
	return Unescape(matches[len(matches)-1][1]), true
}

// lastTextField ignores roles and scans from the last quoted text key.
func lastTextField(payload string) (string, bool) {
	locs := textOpen.FindAllStringIndex(payload, -1)
	if len(locs) == 0 {
		return "", false
	}
	text, _, ok := ScanQuoted(payload, locs[len(locs)-1][1])
	return text, ok
}
