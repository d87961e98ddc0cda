package extract

import (
	"regexp"
	"sync"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// blockPatterns holds the two role block shapes, most precise first.
type blockPatterns struct {
	adjacent *regexp.Regexp // 'role': 'assistant', 'content': [...]
	loose    *regexp.Regexp // 'role': assistant ... 'content': [...]
}

var blockCache sync.Map // role -> *blockPatterns

func init() {
	for _, role := range []string{RoleUser, RoleAssistant} {
		blockCache.Store(role, compileBlockPatterns(role))
	}
}

func compileBlockPatterns(role string) *blockPatterns {
	r := regexp.QuoteMeta(role)
	return &blockPatterns{
		adjacent: regexp.MustCompile(`'role':\s*['"]?` + r + `['"]?\s*,\s*'content':\s*\[([^\]]+)\]`),
		loose:    regexp.MustCompile(`'role':\s*` + r + `[^}]*'content':\s*\[([^\]]+)\]`),
	}
}

func patternsFor(role string) *blockPatterns {
	if p, ok := blockCache.Load(role); ok {
		return p.(*blockPatterns)
	}
	p, _ := blockCache.LoadOrStore(role, compileBlockPatterns(role))
	return p.(*blockPatterns)
}

// LocateRoleBlock returns the body of the content list that belongs to role,
// without the surrounding brackets. The body ends at the first ']' so values
// containing a bracket are cut short; callers fall back to looser strategies
// when the block yields nothing.
func LocateRoleBlock(payload, role string) (string, bool) {
	if payload == "" || role == "" {
		return "", false
	}
	p := patternsFor(role)
	for _, re := range []*regexp.Regexp{p.adjacent, p.loose} {
		if m := re.FindStringSubmatch(payload); m != nil {
			return m[1], true
		}
	}
	return "", false
}
