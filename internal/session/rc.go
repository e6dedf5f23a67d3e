package session

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"al.essio.dev/pkg/shellescape"

	"github.com/petems/hub/internal/shell"
)

// DefaultSiteFunctionDirs are the system zsh completion directories removed
// from fpath so only the session's completions are picked up.
var DefaultSiteFunctionDirs = []string{
	"/usr/local/share/zsh/site-functions",
	"/usr/share/zsh/site-functions",
}

// Options controls rc file content.
type Options struct {
	Prompt  string
	Wrapper string
	Wrapped string

	// Bash has no autoload directory, so both scripts are sourced directly:
	// git's distributed completion first, then the wrapper's.
	GitBashCompletion string
	HubBashCompletion string

	SiteFunctionDirs []string
}

func (o Options) withDefaults() Options {
	if o.Prompt == "" {
		o.Prompt = "$ "
	}
	if o.Wrapper == "" {
		o.Wrapper = "hub"
	}
	if o.Wrapped == "" {
		o.Wrapped = "git"
	}
	if o.SiteFunctionDirs == nil {
		o.SiteFunctionDirs = DefaultSiteFunctionDirs
	}
	return o
}

var rcFuncs = template.FuncMap{
	"quote": shellescape.Quote,
}

var zshRC = template.Must(template.New(".zshrc").Funcs(rcFuncs).Parse(`PS1={{quote .Prompt}}
for site_fn in{{range .SiteFunctionDirs}} {{quote .}}{{end}}; do
  fpath=(${fpath:#$site_fn})
done
fpath=({{quote .CompletionDir}} $fpath)
alias {{quote .Alias}}
autoload -U compinit
compinit -i
`))

var bashRC = template.Must(template.New(".bashrc").Funcs(rcFuncs).Parse(`PS1={{quote .Prompt}}
alias {{quote .Alias}}
. {{quote .GitBashCompletion}}
. {{quote .HubBashCompletion}}
`))

type rcData struct {
	Options
	CompletionDir string
	Alias         string
}

func renderRC(kind shell.Kind, completionDir string, opts Options) (string, error) {
	data := rcData{
		Options:       opts,
		CompletionDir: completionDir,
		Alias:         opts.Wrapped + "=" + opts.Wrapper,
	}

	var tmpl *template.Template
	switch kind {
	case shell.Zsh:
		tmpl = zshRC
	case shell.Bash:
		if strings.TrimSpace(opts.GitBashCompletion) == "" {
			return "", errors.New("bash bootstrap requires git's bash completion path")
		}
		if strings.TrimSpace(opts.HubBashCompletion) == "" {
			return "", errors.New("bash bootstrap requires the wrapper's bash completion path")
		}
		tmpl = bashRC
	default:
		return "", fmt.Errorf("%w: %q", shell.ErrUnsupported, kind)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", kind.RCFile(), err)
	}
	return b.String(), nil
}
