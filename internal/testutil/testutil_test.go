package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRunnerReplaysQueueAndRepeatsLast(t *testing.T) {
	t.Parallel()

	runner := NewFakeRunner().Queue("tmux capture-pane -p -t %1", "one", "two")
	ctx := Context(t)

	var got []string
	for i := 0; i < 4; i++ {
		out, err := runner.Run(ctx, "tmux", "capture-pane", "-p", "-t", "%1")
		require.NoError(t, err)
		got = append(got, string(out))
	}

	assert.Equal(t, []string{"one", "two", "two", "two"}, got)
	assert.Equal(t, 4, runner.Count("capture-pane"))
}

func TestFakeRunnerFailAndFindCall(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	runner := NewFakeRunner().Fail("tmux kill-pane -t %9", boom)

	_, err := runner.Run(Context(t), "tmux", "kill-pane", "-t", "%9")
	require.ErrorIs(t, err, boom)

	call := runner.FindCall(t, "kill-pane")
	assert.Equal(t, "tmux kill-pane -t %9", call.Key())
	assert.Len(t, runner.Calls(), 1)
}

func TestContainsInOrder(t *testing.T) {
	t.Parallel()

	args := []string{"new-window", "-d", "-P", "-n", "hub-test"}
	assert.True(t, ContainsInOrder(args, []string{"-d", "-n", "hub-test"}))
	assert.False(t, ContainsInOrder(args, []string{"-n", "-d"}))
	assert.True(t, ContainsInOrder(args, nil))
}

func TestTempFileAndAssertFileContent(t *testing.T) {
	t.Parallel()

	path := TempFile(t, "screen.txt", "$ git ch\n")
	AssertFileContent(t, path, "$ git ch\n")
}
