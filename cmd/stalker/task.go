package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/setup"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

func initCmd() *cobra.Command {
	var opts setup.Options
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize .stalker/ in a project directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			base, err := setup.Run(dir, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", base)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.ProjectName, "name", "", "Production name (defaults to the directory name)")
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "Store driver: yaml or sqlite")
	return cmd
}

// scheduleFlags are the timing flags shared by task add and task set.
type scheduleFlags struct {
	timing     float64
	unit       string
	model      string
	constraint string
	start      string
	end        string
	duration   string
	priority   int
}

func (f *scheduleFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.timing, "timing", 0, "Schedule timing value")
	cmd.Flags().StringVar(&f.unit, "unit", "h", "Timing unit: min, h, d, w, m, y")
	cmd.Flags().StringVar(&f.model, "model", "effort", "Schedule model: effort, length, duration")
	cmd.Flags().StringVar(&f.constraint, "constraint", "none", "Schedule constraint: none, start, end, both")
	cmd.Flags().StringVar(&f.start, "start", "", "Start date")
	cmd.Flags().StringVar(&f.end, "end", "", "End date")
	cmd.Flags().StringVar(&f.duration, "duration", "", "Span such as 36h, 3d or 2w")
	cmd.Flags().IntVar(&f.priority, "priority", task.DefaultPriority, "Priority 0-1000")
}

func taskCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, edit and remove tasks",
	}
	cmd.AddCommand(taskAddCmd(run), taskSetCmd(run), taskParentCmd(run), taskRemoveCmd(run), taskShowCmd(run))
	return cmd
}

func taskAddCmd(run runner) *cobra.Command {
	var (
		spec        task.TaskSpec
		sf          scheduleFlags
		depends     []string
		resources   []string
		alts        []string
		responsible []string
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		spec.Name = args[0]
		spec.ScheduleTiming = sf.timing
		spec.Resources, spec.AlternativeResources, spec.Responsible = resources, alts, responsible
		var err error
		if spec.ScheduleUnit, err = model.ParseUnit(sf.unit); err != nil {
			return err
		}
		if spec.ScheduleModel, err = model.ParseScheduleModel(sf.model); err != nil {
			return err
		}
		if spec.ScheduleConstraint, err = model.ParseScheduleConstraint(sf.constraint); err != nil {
			return err
		}
		if cmd.Flags().Changed("priority") {
			spec.Priority = &sf.priority
		}
		if sf.start != "" {
			st, err := parseTime(sf.start)
			if err != nil {
				return err
			}
			spec.Start = &st
		}
		if sf.end != "" {
			en, err := parseTime(sf.end)
			if err != nil {
				return err
			}
			spec.End = &en
		}
		if sf.duration != "" {
			d, err := parseSpan(sf.duration)
			if err != nil {
				return err
			}
			spec.Duration = &d
		}
		for _, d := range depends {
			ds, err := parseDependsOn(d)
			if err != nil {
				return err
			}
			spec.DependsOn = append(spec.DependsOn, ds)
		}

		var created *task.Task
		err = a.update(ctx, func(p *task.Production) error {
			t, err := p.CreateTask(spec)
			created = t
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", created.ID(), created.Status(), created.Name())
		return nil
	})
	cmd.Flags().StringVar(&spec.ID, "id", "", "Task id (generated when empty)")
	cmd.Flags().StringVar(&spec.ParentID, "parent", "", "Parent task id")
	cmd.Flags().BoolVar(&spec.IsMilestone, "milestone", false, "Create a milestone")
	cmd.Flags().StringSliceVar(&resources, "resource", nil, "Resources (repeatable)")
	cmd.Flags().StringSliceVar(&alts, "alt", nil, "Alternative resources (repeatable)")
	cmd.Flags().StringSliceVar(&responsible, "responsible", nil, "Responsible users (repeatable)")
	cmd.Flags().StringSliceVar(&depends, "depends", nil, "Dependency as ID[:onend|onstart] (repeatable)")
	sf.register(cmd)
	return cmd
}

// parseDependsOn reads ID[:TARGET].
func parseDependsOn(s string) (task.DependencySpec, error) {
	id, target, _ := strings.Cut(s, ":")
	t, err := model.ParseDependencyTarget(target)
	if err != nil {
		return task.DependencySpec{}, err
	}
	return task.DependencySpec{DependsOnID: id, Target: t}, nil
}

func taskSetCmd(run runner) *cobra.Command {
	var (
		sf          scheduleFlags
		name        string
		resources   []string
		alts        []string
		responsible []string
	)
	cmd := &cobra.Command{
		Use:   "set ID",
		Short: "Change task attributes; only the given flags are applied",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id := args[0]
		changed := cmd.Flags().Changed
		return a.update(ctx, func(p *task.Production) error {
			t, err := p.Task(id)
			if err != nil {
				return err
			}
			if changed("name") {
				if err := p.SetName(id, name); err != nil {
					return err
				}
			}
			if changed("timing") || changed("unit") || changed("model") {
				timingValue, unit, m := t.ScheduleTiming(), t.ScheduleUnit(), t.ScheduleModel()
				if changed("timing") {
					timingValue = sf.timing
				}
				if changed("unit") {
					if unit, err = model.ParseUnit(sf.unit); err != nil {
						return err
					}
				}
				if changed("model") {
					if m, err = model.ParseScheduleModel(sf.model); err != nil {
						return err
					}
				}
				if err := p.SetSchedule(id, timingValue, unit, m); err != nil {
					return err
				}
			}
			if changed("constraint") {
				c, err := model.ParseScheduleConstraint(sf.constraint)
				if err != nil {
					return err
				}
				if err := p.SetConstraint(id, c); err != nil {
					return err
				}
			}
			if changed("start") {
				st, err := parseTime(sf.start)
				if err != nil {
					return err
				}
				if err := p.SetStart(id, st); err != nil {
					return err
				}
			}
			if changed("end") {
				en, err := parseTime(sf.end)
				if err != nil {
					return err
				}
				if err := p.SetEnd(id, en); err != nil {
					return err
				}
			}
			if changed("duration") {
				d, err := parseSpan(sf.duration)
				if err != nil {
					return err
				}
				if err := p.SetDuration(id, d); err != nil {
					return err
				}
			}
			if changed("priority") {
				if err := p.SetPriority(id, sf.priority); err != nil {
					return err
				}
			}
			if changed("resource") || changed("alt") {
				res, alt := t.Resources(), t.AlternativeResources()
				if changed("resource") {
					res = resources
				}
				if changed("alt") {
					alt = alts
				}
				if err := p.SetResources(id, res, alt); err != nil {
					return err
				}
			}
			if changed("responsible") {
				if err := p.SetResponsible(id, responsible); err != nil {
					return err
				}
			}
			return nil
		})
	})
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringSliceVar(&resources, "resource", nil, "Resources (replaces the list)")
	cmd.Flags().StringSliceVar(&alts, "alt", nil, "Alternative resources (replaces the list)")
	cmd.Flags().StringSliceVar(&responsible, "responsible", nil, "Responsible users (replaces the list)")
	sf.register(cmd)
	return cmd
}

func taskParentCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parent ID [PARENT_ID]",
		Short: "Move a task under a parent, or to the top level when PARENT_ID is omitted",
		Args:  cobra.RangeArgs(1, 2),
	}
	cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		parent := ""
		if len(args) == 2 {
			parent = args[1]
		}
		return a.update(ctx, func(p *task.Production) error {
			return p.SetParent(args[0], parent)
		})
	})
	return cmd
}

func taskRemoveCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a task with its subtree, bookings and reviews",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		return a.update(ctx, func(p *task.Production) error {
			return p.DeleteTask(args[0])
		})
	})
	return cmd
}

func taskShowCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Print one task with its dependencies, bookings and reviews",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = run(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		p, err := a.load(ctx)
		if err != nil {
			return err
		}
		t, err := p.Task(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s  %s\n", t.ID(), t.Name())
		fmt.Fprintf(w, "  status:     %s\n", t.Status())
		fmt.Fprintf(w, "  schedule:   %g%s %s (%s)  %.1fh scheduled, %.1fh logged\n",
			t.ScheduleTiming(), t.ScheduleUnit(), t.ScheduleModel(), t.ScheduleConstraint(),
			t.ScheduleSeconds()/3600, t.TotalLoggedSeconds()/3600)
		fmt.Fprintf(w, "  range:      %s - %s\n", t.Start().Format(timeLayouts[2]), t.End().Format(timeLayouts[2]))
		fmt.Fprintf(w, "  priority:   %d\n", t.Priority())
		if parent := t.Parent(); parent != "" {
			fmt.Fprintf(w, "  parent:     %s\n", parent)
		}
		if children := t.Children(); len(children) > 0 {
			fmt.Fprintf(w, "  children:   %s\n", strings.Join(children, ", "))
		}
		if res := t.Resources(); len(res) > 0 {
			fmt.Fprintf(w, "  resources:  %s\n", strings.Join(res, ", "))
		}
		if users := t.ResolvedResponsible(); len(users) > 0 {
			fmt.Fprintf(w, "  responsible: %s\n", strings.Join(users, ", "))
		}
		for _, d := range p.Dependencies(t.ID()) {
			fmt.Fprintf(w, "  depends on: %s (%s, gap %g%s %s)\n", d.DependsOnID, d.Target, d.GapTiming, d.GapUnit, d.GapModel)
		}
		for _, tl := range p.TimeLogs(t.ID()) {
			fmt.Fprintf(w, "  log:        %s  %s  %s - %s\n", tl.ID, tl.Resource, tl.Start.Format(timeLayouts[2]), tl.End.Format(timeLayouts[2]))
		}
		for _, r := range p.Reviews(t.ID()) {
			fmt.Fprintf(w, "  review:     %s  #%d  %s  %s\n", r.ID, r.ReviewNumber, r.Reviewer, r.Status)
		}
		return nil
	})
	return cmd
}
