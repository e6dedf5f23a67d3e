package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/petems/hub/internal/tracing"
)

// GitPrefix resolves git's installation prefix from `git --exec-path`
// (<prefix>/libexec/git-core). A successful result is cached until Reset.
type GitPrefix struct {
	run func(ctx context.Context) ([]byte, error)

	mu     sync.Mutex
	prefix string
}

// DefaultGitPrefix is shared by every harness in the process.
var DefaultGitPrefix = NewGitPrefix(nil)

// NewGitPrefix returns a resolver. A nil run executes `git --exec-path`.
func NewGitPrefix(run func(ctx context.Context) ([]byte, error)) *GitPrefix {
	if run == nil {
		run = func(ctx context.Context) ([]byte, error) {
			_, out, _, err := tracing.ExecuteTool(ctx, "git", []string{"--exec-path"}, "")
			return []byte(out), err
		}
	}
	return &GitPrefix{run: run}
}

// Resolve returns the cached prefix, computing it on first use.
func (g *GitPrefix) Resolve(ctx context.Context) (string, error) {
	if g == nil {
		return "", errors.New("git prefix resolver is nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.prefix != "" {
		return g.prefix, nil
	}

	out, err := g.run(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve git prefix: %w", err)
	}
	execPath := strings.TrimSpace(string(out))
	if execPath == "" {
		return "", errors.New("git --exec-path returned an empty path")
	}

	g.prefix = filepath.Dir(filepath.Dir(execPath))
	return g.prefix, nil
}

// Reset drops the cached prefix.
func (g *GitPrefix) Reset() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.prefix = ""
	g.mu.Unlock()
}

// ZshCompletion is git's distributed zsh completion function.
func (g *GitPrefix) ZshCompletion(ctx context.Context) (string, error) {
	prefix, err := g.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(prefix, "share", "zsh", "site-functions", "_git"), nil
}

// BashCompletion is git's distributed bash completion script.
func (g *GitPrefix) BashCompletion(ctx context.Context) (string, error) {
	prefix, err := g.Resolve(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(prefix, "etc", "bash_completion.d", "git-completion.bash"), nil
}
