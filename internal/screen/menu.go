package screen

import (
	"regexp"
	"strings"
	"unicode"
)

// DescriptionSeparator marks a described completion entry, e.g.
// "checkout  -- switch branches".
const DescriptionSeparator = " -- "

var descriptionSplit = regexp.MustCompile(` +-- +`)

// ParseDescribed extracts item/description pairs from a zsh-style menu.
// A line qualifies when it does not start with the prompt marker and contains
// the separator. Later duplicates overwrite earlier ones.
func ParseDescribed(s Snapshot, prompt string) map[string]string {
	marker := Marker(prompt)
	menu := map[string]string{}
	for _, line := range s.lines {
		if !isMenuLine(line, marker) || !strings.Contains(line, DescriptionSeparator) {
			continue
		}
		parts := descriptionSplit.Split(line, 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		menu[parts[0]] = parts[1]
	}
	return menu
}

// ParseBasic flattens every non-prompt line into whitespace-separated tokens,
// preserving screen order.
func ParseBasic(s Snapshot, prompt string) []string {
	marker := Marker(prompt)
	tokens := []string{}
	for _, line := range s.lines {
		if !isMenuLine(line, marker) {
			continue
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	return tokens
}

// ExpandsTo reports whether the prompt line shows exactly the expected
// command after the prompt. Trailing whitespace is ignored.
func ExpandsTo(s Snapshot, prompt, command string) bool {
	return commandLineIs(s, prompt, command)
}

// NotExpanded reports whether the prompt line still shows the literal text
// the caller typed.
func NotExpanded(s Snapshot, prompt, typed string) bool {
	return commandLineIs(s, prompt, typed)
}

func commandLineIs(s Snapshot, prompt, want string) bool {
	got, ok := s.CommandLine(prompt)
	if !ok {
		return false
	}
	return got == strings.TrimRightFunc(want, unicode.IsSpace)
}

func isMenuLine(line, marker string) bool {
	if line == "" {
		return false
	}
	if marker != "" && strings.HasPrefix(line, marker) {
		return false
	}
	return true
}
