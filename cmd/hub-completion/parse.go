package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/petems/hub/internal/config"
	"github.com/petems/hub/internal/screen"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func newParseCommand(cfg *config.Config) *cobra.Command {
	var (
		describe bool
		format   string
		prompt   string
	)

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a captured pane into completion menu entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readScreen(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			if prompt == "" && cfg != nil {
				prompt = cfg.Prompt
			}
			snap := screen.New(string(raw))

			if describe {
				return writeDescribed(cmd.OutOrStdout(), format, screen.ParseDescribed(snap, prompt))
			}
			return writeBasic(cmd.OutOrStdout(), format, screen.ParseBasic(snap, prompt))
		},
	}

	cmd.Flags().BoolVar(&describe, "describe", false, "parse zsh-style \"item -- description\" entries")
	cmd.Flags().StringVar(&format, "format", formatText, "output format: text, json or yaml")
	cmd.Flags().StringVar(&prompt, "prompt", "", "shell prompt on the captured screen (defaults to config)")
	return cmd
}

func readScreen(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	// #nosec G304 -- the user names the capture file to parse.
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", args[0], err)
	}
	return data, nil
}

func writeDescribed(out io.Writer, format string, menu map[string]string) error {
	switch format {
	case formatText:
		items := make([]string, 0, len(menu))
		for item := range menu {
			items = append(items, item)
		}
		sort.Strings(items)
		for _, item := range items {
			fmt.Fprintf(out, "%s\t%s\n", item, menu[item])
		}
		return nil
	default:
		return encode(out, format, menu)
	}
}

func writeBasic(out io.Writer, format string, tokens []string) error {
	switch format {
	case formatText:
		for _, token := range tokens {
			fmt.Fprintln(out, token)
		}
		return nil
	default:
		return encode(out, format, tokens)
	}
}

func encode(out io.Writer, format string, value any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
