// Package session builds the isolated home directory a completion scenario
// runs in: a shell rc file plus a completion directory of symlinked scripts.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/petems/hub/internal/shell"
)

// CompletionDirName is the session subdirectory completion scripts are linked into.
const CompletionDirName = "completion"

// ErrMissingSource is returned when a completion script to link does not exist.
var ErrMissingSource = errors.New("missing completion source")

// Session is one scenario's synthetic $HOME.
type Session struct {
	Root  string
	Shell shell.Kind
}

// Link is one symlink in the session completion directory.
type Link struct {
	Name   string
	Target string
}

// Prepare wipes root and recreates it for the given shell: the completion
// directory and the shell's rc file. Running it twice yields the same state.
func Prepare(root string, kind shell.Kind, opts Options) (*Session, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("session root is required")
	}
	if kind.RCFile() == "" {
		return nil, fmt.Errorf("%w: %q", shell.ErrUnsupported, kind)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve session root %q: %w", root, err)
	}

	s := &Session{Root: abs, Shell: kind}
	rc, err := renderRC(kind, s.CompletionDir(), opts.withDefaults())
	if err != nil {
		return nil, err
	}

	if err := os.RemoveAll(abs); err != nil {
		return nil, fmt.Errorf("clear session root %q: %w", abs, err)
	}
	if err := os.MkdirAll(s.CompletionDir(), 0o750); err != nil {
		return nil, fmt.Errorf("create completion directory: %w", err)
	}
	if err := os.WriteFile(s.RCPath(), []byte(rc), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", kind.RCFile(), err)
	}

	return s, nil
}

// CompletionDir returns the directory completion scripts are linked into.
func (s *Session) CompletionDir() string {
	return filepath.Join(s.Root, CompletionDirName)
}

// RCPath returns the path of the shell bootstrap file.
func (s *Session) RCPath() string {
	return filepath.Join(s.Root, s.Shell.RCFile())
}

// Link symlinks from into the completion directory under name, defaulting
// to the base name of from. An existing link with the same name is replaced.
// Nothing is touched when from does not exist.
func (s *Session) Link(from, name string) (string, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", fmt.Errorf("%w: empty path", ErrMissingSource)
	}

	source, err := filepath.Abs(from)
	if err != nil {
		return "", fmt.Errorf("resolve completion source %q: %w", from, err)
	}
	if _, err := os.Stat(source); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrMissingSource, source)
		}
		return "", fmt.Errorf("stat completion source %q: %w", source, err)
	}

	if strings.TrimSpace(name) == "" {
		name = filepath.Base(source)
	}
	target := filepath.Join(s.CompletionDir(), name)

	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("replace completion link %q: %w", target, err)
	}
	if err := os.Symlink(source, target); err != nil {
		return "", fmt.Errorf("link completion %q -> %q: %w", target, source, err)
	}
	return target, nil
}

// HasLink reports whether a completion entry with name exists.
func (s *Session) HasLink(name string) bool {
	_, err := os.Lstat(filepath.Join(s.CompletionDir(), name))
	return err == nil
}

// Links lists the completion directory sorted by name.
func (s *Session) Links() ([]Link, error) {
	entries, err := os.ReadDir(s.CompletionDir())
	if err != nil {
		return nil, fmt.Errorf("read completion directory: %w", err)
	}

	links := make([]Link, 0, len(entries))
	for _, entry := range entries {
		link := Link{Name: entry.Name()}
		if target, err := os.Readlink(filepath.Join(s.CompletionDir(), entry.Name())); err == nil {
			link.Target = target
		}
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].Name < links[j].Name
	})
	return links, nil
}
