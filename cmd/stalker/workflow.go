package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

func dependCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "depend",
		Short: "Add and remove dependencies",
	}

	var (
		target    string
		gapTiming float64
		gapUnit   string
		gapModel  string
	)
	add := &cobra.Command{
		Use:   "add TASK_ID DEPENDS_ON_ID",
		Short: "Make a task wait for another",
		Args:  cobra.ExactArgs(2),
	}
	add.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		spec := task.DependencySpec{DependsOnID: args[1], GapTiming: gapTiming}
		var err error
		if spec.Target, err = model.ParseDependencyTarget(target); err != nil {
			return err
		}
		if spec.GapUnit, err = model.ParseUnit(gapUnit); err != nil {
			return err
		}
		if spec.GapModel, err = model.ParseScheduleModel(gapModel); err != nil {
			return err
		}
		return a.update(ctx, func(p *task.Production) error {
			_, err := p.AddDependency(args[0], spec)
			return err
		})
	})
	add.Flags().StringVar(&target, "target", "onend", "Boundary to trail: onend or onstart")
	add.Flags().Float64Var(&gapTiming, "gap", 0, "Gap handed to the scheduler")
	add.Flags().StringVar(&gapUnit, "gap-unit", "h", "Gap unit")
	add.Flags().StringVar(&gapModel, "gap-model", "length", "Gap model: length or duration")

	rm := &cobra.Command{
		Use:   "rm TASK_ID DEPENDS_ON_ID",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2),
	}
	rm.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		return a.update(ctx, func(p *task.Production) error {
			return p.RemoveDependency(args[0], args[1])
		})
	})

	cmd.AddCommand(add, rm)
	return cmd
}

func logCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Book time against tasks",
	}

	var resource, start, end, span string

	add := &cobra.Command{
		Use:   "add TASK_ID",
		Short: "Create a time log",
		Args:  cobra.ExactArgs(1),
	}
	add.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		st, en, err := parseRange(start, end, span)
		if err != nil {
			return err
		}
		var created *task.TimeLog
		err = a.update(ctx, func(p *task.Production) error {
			tl, err := p.CreateTimeLog(args[0], resource, st, en)
			created = tl
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%.1fh\n", created.ID, created.Resource, created.Seconds()/3600)
		return nil
	})
	add.Flags().StringVar(&resource, "resource", "", "Resource booking the time")
	add.Flags().StringVar(&start, "start", "", "Start date")
	add.Flags().StringVar(&end, "end", "", "End date")
	add.Flags().StringVar(&span, "duration", "", "Span such as 90m or 2h instead of --end")
	_ = add.MarkFlagRequired("resource")
	_ = add.MarkFlagRequired("start")

	var rStart, rEnd, rSpan string
	resize := &cobra.Command{
		Use:   "resize TIME_LOG_ID",
		Short: "Change the range of a time log",
		Args:  cobra.ExactArgs(1),
	}
	resize.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		st, en, err := parseRange(rStart, rEnd, rSpan)
		if err != nil {
			return err
		}
		return a.update(ctx, func(p *task.Production) error {
			return p.ResizeTimeLog(args[0], st, en)
		})
	})
	resize.Flags().StringVar(&rStart, "start", "", "Start date")
	resize.Flags().StringVar(&rEnd, "end", "", "End date")
	resize.Flags().StringVar(&rSpan, "duration", "", "Span instead of --end")
	_ = resize.MarkFlagRequired("start")

	rm := &cobra.Command{
		Use:   "rm TIME_LOG_ID",
		Short: "Delete a time log",
		Args:  cobra.ExactArgs(1),
	}
	rm.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		return a.update(ctx, func(p *task.Production) error {
			return p.DeleteTimeLog(args[0])
		})
	})

	var byTask, byResource string
	list := &cobra.Command{
		Use:   "list",
		Short: "List time logs of a task, of a resource or of the whole production",
		Args:  cobra.NoArgs,
	}
	list.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		p, err := a.load(ctx)
		if err != nil {
			return err
		}
		var logs []task.TimeLog
		switch {
		case byTask != "":
			logs = p.TimeLogs(byTask)
		case byResource != "":
			logs = p.ResourceTimeLogs(byResource)
		default:
			logs = p.AllTimeLogs()
		}
		w := cmd.OutOrStdout()
		for _, tl := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tl.ID, tl.TaskID, tl.Resource,
				tl.Start.Format(timeLayouts[2]), tl.End.Format(timeLayouts[2]))
		}
		return nil
	})
	list.Flags().StringVar(&byTask, "task", "", "Only this task")
	list.Flags().StringVar(&byResource, "resource", "", "Only this resource")

	cmd.AddCommand(add, resize, rm, list)
	return cmd
}

func reviewCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Request, approve and revise reviews",
	}

	request := &cobra.Command{
		Use:   "request TASK_ID",
		Short: "Send a WIP task to review by its responsible users",
		Args:  cobra.ExactArgs(1),
	}
	request.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		var reviews []*task.Review
		err := a.update(ctx, func(p *task.Production) error {
			var err error
			reviews, err = p.RequestReview(args[0])
			return err
		})
		if err != nil {
			return err
		}
		for _, r := range reviews {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t#%d\n", r.ID, r.Reviewer, r.ReviewNumber)
		}
		return nil
	})

	approve := &cobra.Command{
		Use:   "approve REVIEW_ID",
		Short: "Approve a review",
		Args:  cobra.ExactArgs(1),
	}
	approve.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		return a.update(ctx, func(p *task.Production) error {
			return p.Approve(args[0])
		})
	})

	var (
		timingValue float64
		unit        string
		description string
		onTask      bool
		reviewer    string
	)
	revise := &cobra.Command{
		Use:   "revise ID",
		Short: "Request a revision on a review, or with --task directly on a completed task",
		Args:  cobra.ExactArgs(1),
	}
	revise.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		u, err := model.ParseUnit(unit)
		if err != nil {
			return err
		}
		return a.update(ctx, func(p *task.Production) error {
			if onTask {
				_, err := p.RequestTaskRevision(args[0], reviewer, timingValue, u, description)
				return err
			}
			return p.RequestRevision(args[0], timingValue, u, description)
		})
	})
	revise.Flags().Float64Var(&timingValue, "timing", 1, "Extra time the revision needs")
	revise.Flags().StringVar(&unit, "unit", "h", "Unit of --timing")
	revise.Flags().StringVarP(&description, "message", "m", "", "What needs to change")
	revise.Flags().BoolVar(&onTask, "task", false, "ID is a task id instead of a review id")
	revise.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer requesting the revision (with --task)")

	cmd.AddCommand(request, approve, revise)
	return cmd
}

// controlCmds are the hold, stop and resume commands.
func controlCmds(run runner) []*cobra.Command {
	ops := []struct {
		use, short string
		fn         func(*task.Production, string) error
	}{
		{"hold", "Put a task on hold", (*task.Production).Hold},
		{"stop", "Stop a task and cap its timing to the logged time", (*task.Production).Stop},
		{"resume", "Resume a held or stopped task", (*task.Production).Resume},
	}
	cmds := make([]*cobra.Command, 0, len(ops))
	for _, op := range ops {
		op := op // per-iteration copy; go directive is 1.21 (pre-1.22 loopvar semantics)
		cmd := &cobra.Command{
			Use:   op.use + " TASK_ID",
			Short: op.short,
			Args:  cobra.ExactArgs(1),
		}
		cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			return a.update(ctx, func(p *task.Production) error {
				return op.fn(p, args[0])
			})
		})
		cmds = append(cmds, cmd)
	}
	return cmds
}

// parseRange resolves --start with exactly one of --end or --duration.
func parseRange(start, end, span string) (time.Time, time.Time, error) {
	st, err := parseTime(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	switch {
	case end != "" && span != "":
		return time.Time{}, time.Time{}, errors.New("give either --end or --duration, not both")
	case end != "":
		en, err := parseTime(end)
		return st, en, err
	case span != "":
		d, err := parseSpan(span)
		return st, st.Add(d), err
	default:
		return time.Time{}, time.Time{}, errors.New("one of --end or --duration is required")
	}
}
