package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eoyilmaz/stalker-sub003/internal/config"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/scheduler"
	"github.com/eoyilmaz/stalker-sub003/internal/status"
)

func statusCmd(run runner) *cobra.Command {
	var jsonOutput, follow bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the task tree with statuses, progress and open reviews",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		w := cmd.OutOrStdout()
		if !follow {
			p, err := a.load(ctx)
			if err != nil {
				return err
			}
			return status.Run(w, p, jsonOutput)
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		var mu sync.Mutex
		render := func() {
			mu.Lock()
			defer mu.Unlock()
			p, err := a.load(ctx)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "status: %v\n", err)
				return
			}
			if !jsonOutput {
				fmt.Fprintf(w, "\n--- %s ---\n", time.Now().Format(timeLayouts[2]))
			}
			if err := status.Run(w, p, jsonOutput); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "status: %v\n", err)
			}
		}
		render()

		go func() {
			err := config.Watch(ctx, filepath.Join(a.dir, config.FileName),
				func(cfg model.Config) {
					a.logger.Printf("config changed; store and studio settings apply to the next command")
				},
				func(err error) { fmt.Fprintf(cmd.ErrOrStderr(), "config: %v\n", err) })
			if err != nil {
				a.logger.Printf("config watch: %v", err)
			}
		}()
		err := config.WatchFile(ctx, a.store.Path(), render)
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return err
	})
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Print again whenever the production changes")
	return cmd
}

func projectCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Print the JSON the scheduler command receives",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		p, err := a.load(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(scheduler.Request{Production: p.Name(), Tasks: scheduler.Project(p)})
	})
	return cmd
}

func scheduleCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured scheduler and apply its dates",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		sc := a.cfg.Scheduler
		if sc.Command == "" {
			return errors.New("scheduler.command is not set in config.yaml")
		}
		r := scheduler.NewRunner(storeAdapter{a}, &scheduler.CommandScheduler{
			Command: sc.Command,
			Args:    sc.Args,
			Timeout: time.Duration(sc.TimeoutSec) * time.Second,
		}, a.logger)
		report, err := r.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %d of %d tasks in %v\n",
			report.Applied, report.Projected, report.Elapsed.Round(time.Millisecond))
		return nil
	})
	return cmd
}
