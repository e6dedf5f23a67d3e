package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/petems/hub/internal/config"
	"github.com/petems/hub/internal/steps"
)

const defaultFeaturePattern = "features/**/*.feature"

var (
	errNoFeatures      = errors.New("no feature files matched")
	errScenariosFailed = errors.New("completion scenarios failed")
)

// runSuite is swapped in tests.
var runSuite = steps.Run

func newTestCommand(cfg *config.Config, logger *log.Logger) *cobra.Command {
	var (
		tags   string
		format string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "test [patterns...]",
		Short: "Run completion scenarios from feature files",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandFeatures(args)
			if err != nil {
				return err
			}
			logger.With("command", "test").Info("running scenarios", "features", len(paths), "tags", tags)

			status := runSuite(steps.Options{
				Config: cfg,
				Logger: logger,
			}, steps.RunOptions{
				Paths:  paths,
				Tags:   tags,
				Format: format,
				Strict: strict,
				Output: cmd.OutOrStdout(),
			})
			if status != 0 {
				return fmt.Errorf("%w: exit status %d", errScenariosFailed, status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tags, "tags", "", "only run scenarios matching this tag expression")
	cmd.Flags().StringVar(&format, "format", "pretty", "godog output format")
	cmd.Flags().BoolVar(&strict, "strict", true, "fail on undefined or pending steps")
	return cmd
}

// expandFeatures resolves doublestar patterns into a sorted, de-duplicated
// list of feature files.
func expandFeatures(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{defaultFeaturePattern}
	}

	seen := map[string]struct{}{}
	paths := make([]string, 0)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		for _, match := range matches {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			paths = append(paths, match)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %v", errNoFeatures, patterns)
	}
	sort.Strings(paths)
	return paths, nil
}
