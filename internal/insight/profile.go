package insight

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/aether-labs/aether/internal/llm"
)

// promptClipBytes caps each quoted message so a single long turn cannot
// dominate the prompt.
const promptClipBytes = 300

// patternTerms maps a named behavioral pattern to the substrings counted
// toward it. Matching is deliberately crude: the counts feed the gate
// fingerprint and the generation prompt, not any user-visible analysis.
var patternTerms = map[string][]string{
	"questions":   {"?"},
	"goals":       {"goal", "want to", "plan to", "hope to"},
	"frustration": {"stuck", "can't", "cannot", "frustrat"},
	"gratitude":   {"thank", "appreciate"},
	"feelings":    {"feel", "felt", "feeling"},
}

// Profile is the aggregated behavioral state one insight is derived from.
type Profile struct {
	TotalMessages int
	Patterns      map[string]int
	Recent        []llm.Message
}

// Aggregate summarizes a user's history into a Profile. Pattern counts
// only consider the user's own turns; assistant replies would skew them.
func Aggregate(recent []llm.Message, total int) Profile {
	if total < 0 {
		total = 0
	}
	patterns := make(map[string]int, len(patternTerms))
	for _, m := range recent {
		if m.Role != "user" {
			continue
		}
		content := strings.ToLower(m.Content)
		for name, terms := range patternTerms {
			for _, term := range terms {
				patterns[name] += strings.Count(content, term)
			}
		}
	}
	return Profile{TotalMessages: total, Patterns: patterns, Recent: recent}
}

// Prompt renders the profile as generation context.
func (p Profile) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The user has exchanged %d messages in total.\n", p.TotalMessages)
	for _, name := range sortedPatterns(p.Patterns) {
		if n := p.Patterns[name]; n > 0 {
			fmt.Fprintf(&b, "Recent %s signals: %d.\n", name, n)
		}
	}
	b.WriteString("Recent conversation:\n")
	for _, m := range p.Recent {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, clip(m.Content, promptClipBytes))
	}
	return b.String()
}

// clip truncates s to at most max bytes without splitting a rune.
func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func sortedPatterns(patterns map[string]int) []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
