package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTrimsTrailingWhitespaceOnly(t *testing.T) {
	t.Parallel()

	snap := New("  $ git\n\n  menu  \n\n\n   ")

	assert.Equal(t, []string{"  $ git", "", "  menu"}, snap.Lines())
}

func TestNewEmptyCapture(t *testing.T) {
	t.Parallel()

	snap := New(" \n\n")

	assert.True(t, snap.Empty())
	assert.Equal(t, "", snap.LastNonEmpty())
	assert.False(t, snap.EndsWithPrompt(DefaultPrompt))
}

func TestLinesReturnsCopy(t *testing.T) {
	t.Parallel()

	snap := FromLines("a", "b")
	lines := snap.Lines()
	lines[0] = "mutated"

	assert.Equal(t, "a", snap.Lines()[0])
}

func TestEndsWithPrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{name: "bare prompt", raw: "$ ", want: true},
		{name: "prompt after output", raw: "Last login\n$ git status\nclean\n$ ", want: true},
		{name: "still typing", raw: "$ git ch", want: false},
		{name: "startup banner", raw: "zsh: compinit running", want: false},
		{name: "blank lines below prompt", raw: "$\n\n\n", want: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, New(tc.raw).EndsWithPrompt(DefaultPrompt))
		})
	}
}

func TestCommandLine(t *testing.T) {
	t.Parallel()

	line, ok := FromLines("$ git ch", "checkout cherry", "$ git ch").CommandLine(DefaultPrompt)
	assert.True(t, ok)
	assert.Equal(t, "git ch", line)

	line, ok = FromLines("$").CommandLine(DefaultPrompt)
	assert.True(t, ok)
	assert.Equal(t, "", line)

	_, ok = FromLines("no prompt here").CommandLine(DefaultPrompt)
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, New("a\nb").Equal(FromLines("a", "b")))
	assert.False(t, New("a\nb").Equal(New("a\nc")))
	assert.False(t, New("a").Equal(New("a\nb")))
}

func TestMarkerAndTerminator(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$", Marker(DefaultPrompt))
	assert.Equal(t, "$", Terminator(DefaultPrompt))
	assert.Equal(t, ">", Terminator("hub> "))
	assert.Equal(t, "", Terminator("   "))
}
