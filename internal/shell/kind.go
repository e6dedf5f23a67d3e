// Package shell enumerates the interactive shells the completion harness can drive.
package shell

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned for shells outside the supported set.
var ErrUnsupported = errors.New("unsupported shell")

// Kind identifies one supported interactive shell.
type Kind string

const (
	Bash Kind = "bash"
	Zsh  Kind = "zsh"
)

// Kinds returns every supported shell in a stable order.
func Kinds() []Kind {
	return []Kind{Bash, Zsh}
}

// Parse normalizes a shell name and rejects unsupported shells.
func Parse(name string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(name))) {
	case Bash:
		return Bash, nil
	case Zsh:
		return Zsh, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
}

// RCFile is the bootstrap file name the shell reads from $HOME.
func (k Kind) RCFile() string {
	switch k {
	case Bash:
		return ".bashrc"
	case Zsh:
		return ".zshrc"
	default:
		return ""
	}
}

func (k Kind) String() string {
	return string(k)
}
