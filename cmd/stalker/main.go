// Command stalker manages a production's tasks, bookings and reviews.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var projectDir string
	root := &cobra.Command{
		Use:           "stalker",
		Short:         "Stalker - production task tracking and review workflow",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project directory (searched upwards for .stalker/)")

	// run opens the project for one command and closes it afterwards.
	run := func(fn appFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := openApp(projectDir)
			if err != nil {
				return err
			}
			err = fn(cmd.Context(), cmd, a, args)
			if cerr := a.Close(); err == nil {
				err = cerr
			}
			var ve *task.ValidationErrors
			if errors.As(err, &ve) {
				fmt.Fprint(cmd.ErrOrStderr(), ve.FormatStderr())
			}
			return err
		}
	}

	root.AddCommand(initCmd())
	root.AddCommand(taskCmd(run))
	root.AddCommand(dependCmd(run))
	root.AddCommand(logCmd(run))
	root.AddCommand(reviewCmd(run))
	root.AddCommand(controlCmds(run)...)
	root.AddCommand(statusCmd(run))
	root.AddCommand(projectCmd(run))
	root.AddCommand(scheduleCmd(run))
	return root
}

type (
	appFunc func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error
	runner  func(fn appFunc) func(*cobra.Command, []string) error
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime accepts RFC 3339 or a local date with an optional time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339 or YYYY-MM-DD[ HH:MM]", s)
}

// parseSpan accepts a Go duration or a whole number of calendar days or
// weeks such as 3d or 2w.
func parseSpan(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n := len(s); n > 1 {
		per := map[byte]time.Duration{'d': 24 * time.Hour, 'w': 7 * 24 * time.Hour}[s[n-1]]
		if per > 0 {
			v, err := strconv.Atoi(s[:n-1])
			if err != nil {
				return 0, fmt.Errorf("invalid span %q", s)
			}
			return time.Duration(v) * per, nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid span %q", s)
	}
	return d, nil
}
