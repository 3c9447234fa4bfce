package runner

import (
	"math/rand"
	"regexp"
	"time"
)

var templateVarRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// renderTemplate substitutes {{var}} placeholders from the learner's profile.
// Unknown variables render as an empty string.
func renderTemplate(text string, vars map[string]string) string {
	return templateVarRe.ReplaceAllStringFunc(text, func(m string) string {
		name := templateVarRe.FindStringSubmatch(m)[1]
		return vars[name]
	})
}

// templateVarNames returns the distinct placeholder names in order of first
// appearance.
func templateVarNames(text string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range templateVarRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// chunkRunes splits text into rune chunks of at most size runes; size <= 0
// yields the whole text as one chunk.
func chunkRunes(text string, size int) []string {
	if size <= 0 || text == "" {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// simulateStreamingSleep jitters static-content chunk delivery so it feels
// like model output. maxMS 0 disables the sleep (tests).
func simulateStreamingSleep(maxMS int) {
	if maxMS <= 0 {
		return
	}
	time.Sleep(time.Duration(rand.Intn(maxMS)) * time.Millisecond)
}
