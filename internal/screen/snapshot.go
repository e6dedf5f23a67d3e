// Package screen turns captured pane text into data the completion steps can
// assert on. Everything here is pure: snapshots come from tmux capture-pane
// output and parsing never touches a live pane.
package screen

import (
	"strings"
	"unicode"
)

// DefaultPrompt is the PS1 written into every session rc file.
const DefaultPrompt = "$ "

// Snapshot is an immutable view of a pane's visible lines at one instant.
type Snapshot struct {
	lines []string
}

// New builds a snapshot from raw capture-pane output. Trailing whitespace is
// trimmed from the end of the capture only; inner blank lines are kept.
func New(raw string) Snapshot {
	raw = strings.TrimRightFunc(raw, unicode.IsSpace)
	if raw == "" {
		return Snapshot{}
	}

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return Snapshot{lines: lines}
}

// FromLines builds a snapshot from already split lines.
func FromLines(lines ...string) Snapshot {
	return New(strings.Join(lines, "\n"))
}

// Lines returns a copy of the captured lines in screen order.
func (s Snapshot) Lines() []string {
	return append([]string(nil), s.lines...)
}

// Len returns the number of captured lines.
func (s Snapshot) Len() int {
	return len(s.lines)
}

// Empty reports whether nothing was captured.
func (s Snapshot) Empty() bool {
	return len(s.lines) == 0
}

// String joins the lines back into capture-pane form.
func (s Snapshot) String() string {
	return strings.Join(s.lines, "\n")
}

// Equal reports whether both snapshots hold the same lines.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.lines) != len(other.lines) {
		return false
	}
	for i := range s.lines {
		if s.lines[i] != other.lines[i] {
			return false
		}
	}
	return true
}

// LastNonEmpty returns the last line containing anything but whitespace.
func (s Snapshot) LastNonEmpty() string {
	for i := len(s.lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(s.lines[i]) != "" {
			return s.lines[i]
		}
	}
	return ""
}

// EndsWithPrompt reports whether the shell looks idle: the last non-empty
// line ends exactly with the prompt terminator.
func (s Snapshot) EndsWithPrompt(prompt string) bool {
	terminator := Terminator(prompt)
	if terminator == "" {
		return false
	}
	last := strings.TrimRightFunc(s.LastNonEmpty(), unicode.IsSpace)
	return strings.HasSuffix(last, terminator)
}

// PromptLine returns the last line that starts with the prompt.
func (s Snapshot) PromptLine(prompt string) (string, bool) {
	marker := Marker(prompt)
	if marker == "" {
		return "", false
	}
	for i := len(s.lines) - 1; i >= 0; i-- {
		line := s.lines[i]
		if strings.HasPrefix(line, prompt) || strings.TrimRightFunc(line, unicode.IsSpace) == marker {
			return line, true
		}
	}
	return "", false
}

// CommandLine returns the text typed after the prompt on the last prompt line.
func (s Snapshot) CommandLine(prompt string) (string, bool) {
	line, ok := s.PromptLine(prompt)
	if !ok {
		return "", false
	}
	line = strings.TrimRightFunc(line, unicode.IsSpace)
	if line == Marker(prompt) {
		return "", true
	}
	return strings.TrimPrefix(line, prompt), true
}

// Marker is the prompt with surrounding whitespace removed ("$" for "$ ").
// Lines beginning with it are never menu entries.
func Marker(prompt string) string {
	return strings.TrimSpace(prompt)
}

// Terminator is the final visible character of the prompt.
func Terminator(prompt string) string {
	marker := Marker(prompt)
	if marker == "" {
		return ""
	}
	runes := []rune(marker)
	return string(runes[len(runes)-1])
}
