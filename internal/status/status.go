// Package status renders a production's task tree for the CLI.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/eoyilmaz/stalker-sub003/internal/model"
	"github.com/eoyilmaz/stalker-sub003/internal/task"
)

type ProductionStatus struct {
	Production     string         `json:"production"`
	Tasks          int            `json:"tasks"`
	ByStatus       map[string]int `json:"by_status"`
	ScheduledHours float64        `json:"scheduled_hours"`
	LoggedHours    float64        `json:"logged_hours"`
	Percent        float64        `json:"percent_complete"`
	OpenReviews    []OpenReview   `json:"open_reviews,omitempty"`
	Rows           []TaskRow      `json:"rows"`
}

type TaskRow struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Depth          int          `json:"depth"`
	Container      bool         `json:"container,omitempty"`
	Status         model.Status `json:"status"`
	Percent        float64      `json:"percent_complete"`
	LoggedHours    float64      `json:"logged_hours"`
	ScheduledHours float64      `json:"scheduled_hours"`
	Start          time.Time    `json:"start"`
	End            time.Time    `json:"end"`
	Resources      []string     `json:"resources,omitempty"`
	DependsOn      []string     `json:"depends_on,omitempty"`
}

type OpenReview struct {
	ID       string `json:"id"`
	TaskID   string `json:"task_id"`
	Reviewer string `json:"reviewer"`
	Number   int    `json:"review_number"`
}

// Build walks the hierarchy depth first. Totals are taken from the root
// tasks so container aggregates are not counted twice.
func Build(p *task.Production) ProductionStatus {
	s := ProductionStatus{
		Production: p.Name(),
		ByStatus:   make(map[string]int),
	}
	var scheduled, logged float64
	for _, root := range p.Roots() {
		scheduled += root.ScheduleSeconds()
		logged += root.TotalLoggedSeconds()
		s.walk(p, root, 0)
	}
	s.ScheduledHours = scheduled / 3600
	s.LoggedHours = logged / 3600
	if scheduled > 0 {
		s.Percent = logged / scheduled * 100
	}
	return s
}

func (s *ProductionStatus) walk(p *task.Production, t *task.Task, depth int) {
	s.Tasks++
	s.ByStatus[string(t.Status())]++

	row := TaskRow{
		ID:             t.ID(),
		Name:           t.Name(),
		Depth:          depth,
		Container:      t.IsContainer(),
		Status:         t.Status(),
		Percent:        t.PercentComplete(),
		LoggedHours:    t.TotalLoggedSeconds() / 3600,
		ScheduledHours: t.ScheduleSeconds() / 3600,
		Start:          t.Start(),
		End:            t.End(),
		Resources:      t.Resources(),
	}
	for _, d := range p.Dependencies(t.ID()) {
		row.DependsOn = append(row.DependsOn, d.DependsOnID)
	}
	s.Rows = append(s.Rows, row)

	for _, r := range p.Reviews(t.ID()) {
		if r.Status == model.ReviewStatusNew {
			s.OpenReviews = append(s.OpenReviews, OpenReview{ID: r.ID, TaskID: r.TaskID, Reviewer: r.Reviewer, Number: r.ReviewNumber})
		}
	}
	for _, id := range t.Children() {
		child, err := p.Task(id)
		if err != nil {
			continue
		}
		s.walk(p, child, depth+1)
	}
}

// Run builds the status of p and writes it as text or indented JSON.
func Run(w io.Writer, p *task.Production, jsonOutput bool) error {
	s := Build(p)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	Print(w, s)
	return nil
}

func Print(w io.Writer, s ProductionStatus) {
	fmt.Fprintf(w, "Production: %s  tasks=%d  %.1f/%.1fh  %.0f%%\n",
		s.Production, s.Tasks, s.LoggedHours, s.ScheduledHours, s.Percent)

	if len(s.Rows) == 0 {
		fmt.Fprintln(w, "\nTasks: none")
		return
	}

	var counts []string
	for _, st := range model.TaskStatuses {
		if n := s.ByStatus[string(st)]; n > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", st, n))
		}
	}
	fmt.Fprintf(w, "Statuses: %s\n", strings.Join(counts, " "))

	fmt.Fprintln(w, "\nTasks:")
	fmt.Fprintf(w, "  %-32s  %-4s  %5s  %13s  %-16s  %-16s  %s\n",
		"NAME", "STAT", "DONE", "LOGGED/SCHED", "START", "END", "RESOURCES")
	for _, r := range s.Rows {
		name := strings.Repeat("  ", r.Depth) + r.Name
		if r.Container {
			name += "/"
		}
		fmt.Fprintf(w, "  %-32s  %-4s  %4.0f%%  %6.1f/%-6.1f  %-16s  %-16s  %s\n",
			truncate(name, 32), r.Status, r.Percent, r.LoggedHours, r.ScheduledHours,
			r.Start.Format("2006-01-02 15:04"), r.End.Format("2006-01-02 15:04"),
			strings.Join(r.Resources, ","))
	}

	if len(s.OpenReviews) > 0 {
		fmt.Fprintln(w, "\nOpen reviews:")
		for _, r := range s.OpenReviews {
			fmt.Fprintf(w, "  %-30s  task=%-30s  reviewer=%-12s  #%d\n", r.ID, r.TaskID, r.Reviewer, r.Number)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}
