package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/petems/hub/internal/completion"
	"github.com/petems/hub/internal/config"
	"github.com/petems/hub/internal/tmux"
)

func newHarness(cfg *config.Config, logger *log.Logger) (*completion.Harness, error) {
	return completion.New(completion.Options{Config: cfg, Logger: logger})
}

func newSetupCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var (
		shellName string
		base      string
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Prepare a session directory and print how to open a shell in it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := newHarness(cfg, logger)
			if err != nil {
				return err
			}
			if err := h.SetShell(cmd.Context(), shellName); err != nil {
				return err
			}
			if base != "" {
				if err := h.UseBaseCompletions(cmd.Context(), base); err != nil {
					return err
				}
			}
			logger.With("command", "setup").Info("session prepared", "root", h.Session().Root, "shell", shellName)
			return printSetup(cmd.OutOrStdout(), h)
		},
	}

	cmd.Flags().StringVar(&shellName, "shell", "zsh", "shell to prepare (bash or zsh)")
	cmd.Flags().StringVar(&base, "base", "", "also link base git completions (zsh-distributed or git-distributed)")
	return cmd
}

func printSetup(out io.Writer, h *completion.Harness) error {
	s := h.Session()
	links, err := s.Links()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "root:   %s\n", s.Root)
	fmt.Fprintf(out, "rc:     %s\n", s.RCPath())
	fmt.Fprintf(out, "launch: tmux new-window -n %s -c %s %s\n",
		h.WindowName(), s.Root, tmux.LaunchCommand(s.Shell, s.Root))
	for _, link := range links {
		fmt.Fprintf(out, "link:   %s -> %s\n", link.Name, link.Target)
	}
	return nil
}
