// Package testutil provides shared test helpers for the completion harness.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Context returns a context cancelled when the test completes.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// TempFile writes content to name inside a fresh temp directory.
func TempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600), "failed to write temp file")
	return path
}

// Chdir changes the working directory until the test completes.
// Tests using it must not run in parallel.
func Chdir(t *testing.T, dir string) {
	t.Helper()
	original, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")
	require.NoError(t, os.Chdir(dir), "failed to change directory")

	t.Cleanup(func() {
		assert.NoError(t, os.Chdir(original), "failed to restore working directory")
	})
}

// AssertFileContent checks that path holds exactly expected.
func AssertFileContent(t *testing.T, path, expected string) {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err, "failed to read file: %s", path)
	assert.Equal(t, expected, string(content), "file content mismatch")
}

// SkipIfShort skips the test if -short flag is provided.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
}

// RequireTools skips the test unless every tool is on PATH.
func RequireTools(t *testing.T, tools ...string) {
	t.Helper()
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found on PATH", tool)
		}
	}
}

// Call is one command recorded by FakeRunner.
type Call struct {
	Name string
	Args []string
}

// Key is the lookup key FakeRunner uses for a call.
func (c Call) Key() string {
	return CallKey(c.Name, c.Args...)
}

// CallKey joins a command line with single spaces.
func CallKey(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

// FakeRunner records commands and replays scripted results keyed by
// CallKey. Queued outputs are consumed in order; the final entry repeats so
// polling loops keep seeing the last screen.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []Call
	outputs map[string][][]byte
	errors  map[string]error
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		outputs: map[string][][]byte{},
		errors:  map[string]error{},
	}
}

// Queue appends outputs for key.
func (f *FakeRunner) Queue(key string, outputs ...string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, out := range outputs {
		f.outputs[key] = append(f.outputs[key], []byte(out))
	}
	return f
}

// Fail makes every call matching key return err.
func (f *FakeRunner) Fail(key string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors[key] = err
	return f
}

// Run implements the tmux command runner seam.
func (f *FakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := Call{Name: name, Args: append([]string(nil), args...)}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)

	key := call.Key()
	if err, ok := f.errors[key]; ok {
		return nil, err
	}
	if queue, ok := f.outputs[key]; ok && len(queue) > 0 {
		next := queue[0]
		if len(queue) > 1 {
			f.outputs[key] = queue[1:]
		}
		return next, nil
	}
	return []byte{}, nil
}

// Calls returns a copy of every recorded call.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many recorded calls used subcommand.
func (f *FakeRunner) Count(subcommand string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, call := range f.calls {
		if len(call.Args) > 0 && call.Args[0] == subcommand {
			n++
		}
	}
	return n
}

// FindCall returns the first call using subcommand or fails the test.
func (f *FakeRunner) FindCall(t *testing.T, subcommand string) Call {
	t.Helper()

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, call := range f.calls {
		if len(call.Args) > 0 && call.Args[0] == subcommand {
			return call
		}
	}
	t.Fatalf("call %s not found in %v", subcommand, f.calls)
	return Call{}
}

// ContainsInOrder reports whether expected appears as a subsequence of args.
func ContainsInOrder(args []string, expected []string) bool {
	if len(expected) == 0 {
		return true
	}
	idx := 0
	for _, arg := range args {
		if arg == expected[idx] {
			idx++
			if idx == len(expected) {
				return true
			}
		}
	}
	return false
}
