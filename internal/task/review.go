package task

import (
	"strings"
	"time"

	"github.com/eoyilmaz/stalker-sub003/internal/events"
	"github.com/eoyilmaz/stalker-sub003/internal/model"
)

// Review is one reviewer's vote on a task. Reviews requested together share
// a ReviewNumber and form a review set.
type Review struct {
	ID             string             `yaml:"id" json:"id"`
	TaskID         string             `yaml:"task_id" json:"task_id"`
	Reviewer       string             `yaml:"reviewer" json:"reviewer"`
	ReviewNumber   int                `yaml:"review_number" json:"review_number"`
	Status         model.ReviewStatus `yaml:"status" json:"status"`
	Description    string             `yaml:"description,omitempty" json:"description,omitempty"`
	ScheduleTiming float64            `yaml:"schedule_timing,omitempty" json:"schedule_timing,omitempty"`
	ScheduleUnit   model.TimeUnit     `yaml:"schedule_unit,omitempty" json:"schedule_unit,omitempty"`
	CreatedAt      time.Time          `yaml:"created_at" json:"created_at"`
}

// RequestReview moves a WIP leaf to PREV and opens one review per resolved
// responsible user.
func (p *Production) RequestReview(taskID string) ([]*Review, error) {
	t, err := p.Task(taskID)
	if err != nil {
		return nil, err
	}
	if p.isContainer(taskID) {
		return nil, invalid("task", "%s is a container; only leaf tasks are reviewed", taskID)
	}
	if !model.CanApply(model.OpRequestReview, t.status) {
		return nil, statusError(t, model.OpRequestReview)
	}
	reviewers := t.ResolvedResponsible()
	if len(reviewers) == 0 {
		return nil, invalid("responsible", "task %s has nobody responsible to review it", taskID)
	}

	t.reviewNumber++
	out := make([]*Review, 0, len(reviewers))
	for _, reviewer := range reviewers {
		r, err := p.addReview(t, reviewer, model.ReviewStatusNew, "", 0, "")
		if err != nil {
			return nil, err
		}
		cp := *r
		out = append(out, &cp)
	}
	p.setStatus(t, model.StatusPendingReview)
	p.notify(events.EventReviewRequested, map[string]interface{}{
		"task_id": taskID, "review_number": t.reviewNumber, "reviewers": reviewers,
	})
	p.propagate(taskID)
	return out, nil
}

// Approve records an approval. The task completes once every review of the
// current set is decided and none asked for a revision.
func (p *Production) Approve(reviewID string) error {
	r, t, err := p.openReview(reviewID, model.OpApprove)
	if err != nil {
		return err
	}
	r.Status = model.ReviewStatusApproved
	p.notify(events.EventReviewDecided, map[string]interface{}{
		"task_id": t.id, "review_id": r.ID, "status": string(r.Status),
	})
	p.finalizeReviewSet(t)
	return nil
}

// RequestRevision records a revision request asking for extra time.
func (p *Production) RequestRevision(reviewID string, timingValue float64, unit model.TimeUnit, description string) error {
	r, t, err := p.openReview(reviewID, model.OpRequestRevision)
	if err != nil {
		return err
	}
	if err := validatePositiveTiming(timingValue); err != nil {
		return err
	}
	if err := validateSchedule(timingValue, unit, t.model); err != nil {
		return err
	}
	r.Status = model.ReviewStatusRequestedRevision
	r.ScheduleTiming, r.ScheduleUnit, r.Description = timingValue, unit, description
	p.notify(events.EventReviewDecided, map[string]interface{}{
		"task_id": t.id, "review_id": r.ID, "status": string(r.Status),
	})
	p.finalizeReviewSet(t)
	return nil
}

// RequestTaskRevision asks for a revision without an open review: on a
// completed task it starts a new review set that is decided right away, on
// a task pending review it joins the current set.
func (p *Production) RequestTaskRevision(taskID, reviewer string, timingValue float64, unit model.TimeUnit, description string) (*Review, error) {
	t, err := p.Task(taskID)
	if err != nil {
		return nil, err
	}
	if p.isContainer(taskID) {
		return nil, invalid("task", "%s is a container; only leaf tasks are reviewed", taskID)
	}
	if !model.CanApply(model.OpRequestRevision, t.status) {
		return nil, statusError(t, model.OpRequestRevision)
	}
	if strings.TrimSpace(reviewer) == "" {
		return nil, invalid("reviewer", "must not be empty")
	}
	if err := validatePositiveTiming(timingValue); err != nil {
		return nil, err
	}
	if err := validateSchedule(timingValue, unit, t.model); err != nil {
		return nil, err
	}
	if t.status == model.StatusCompleted {
		t.reviewNumber++
	}
	r, err := p.addReview(t, reviewer, model.ReviewStatusRequestedRevision, description, timingValue, unit)
	if err != nil {
		return nil, err
	}
	p.notify(events.EventReviewDecided, map[string]interface{}{
		"task_id": t.id, "review_id": r.ID, "status": string(r.Status),
	})
	p.finalizeReviewSet(t)
	out := *r
	return &out, nil
}

// Reviews returns every review of a task in creation order.
func (p *Production) Reviews(taskID string) []Review {
	ids := p.taskReviews[taskID]
	out := make([]Review, 0, len(ids))
	for _, id := range ids {
		out = append(out, *p.reviews[id])
	}
	return out
}

// Review returns a copy of the review with the given id.
func (p *Production) Review(id string) (Review, error) {
	r, ok := p.reviews[id]
	if !ok {
		return Review{}, notFound("review", id)
	}
	return *r, nil
}

func (p *Production) addReview(t *Task, reviewer string, status model.ReviewStatus, description string, timingValue float64, unit model.TimeUnit) (*Review, error) {
	id, err := model.GenerateID(model.IDTypeReview)
	if err != nil {
		return nil, err
	}
	r := &Review{
		ID:             id,
		TaskID:         t.id,
		Reviewer:       strings.TrimSpace(reviewer),
		ReviewNumber:   t.reviewNumber,
		Status:         status,
		Description:    description,
		ScheduleTiming: timingValue,
		ScheduleUnit:   unit,
		CreatedAt:      p.now(),
	}
	p.reviews[id] = r
	p.taskReviews[t.id] = append(p.taskReviews[t.id], id)
	return r, nil
}

// openReview finds an undecided review of the current set whose task is in
// a status op allows.
func (p *Production) openReview(reviewID string, op model.Operation) (*Review, *Task, error) {
	r, ok := p.reviews[reviewID]
	if !ok {
		return nil, nil, notFound("review", reviewID)
	}
	t := p.tasks[r.TaskID]
	if r.Status.IsDecided() {
		return nil, nil, &StatusError{
			ID:        r.ID,
			Operation: string(op),
			Status:    string(r.Status),
			Allowed:   []string{string(model.ReviewStatusNew)},
		}
	}
	if t.status != model.StatusPendingReview || r.ReviewNumber != t.reviewNumber {
		return nil, nil, &StatusError{
			ID:        t.id,
			Operation: string(op),
			Status:    string(t.status),
			Allowed:   []string{string(model.StatusPendingReview)},
		}
	}
	return r, t, nil
}

// finalizeReviewSet closes the current review set once every review in it is
// decided. Any revision request sends the task to HREV with the requested
// time added on top of what was logged; otherwise it completes.
func (p *Production) finalizeReviewSet(t *Task) {
	var requested float64
	revised := false
	for _, id := range p.taskReviews[t.id] {
		r := p.reviews[id]
		if r.ReviewNumber != t.reviewNumber {
			continue
		}
		if !r.Status.IsDecided() {
			return
		}
		if r.Status == model.ReviewStatusRequestedRevision {
			revised = true
			requested += p.settings.ToSeconds(r.ScheduleTiming, r.ScheduleUnit, t.model)
		}
	}

	if revised {
		t.timing, t.unit = p.settings.LeastMeaningfulUnit(t.loggedSeconds+requested, t.model.IsWorkTime())
		p.refreshLeaf(t.id)
		p.setStatus(t, model.StatusHasRevision)
	} else {
		p.setStatus(t, model.StatusCompleted)
	}
	p.log(LogLevelDebug, "task=%s review set %d closed, status %s", t.id, t.reviewNumber, t.status)
	p.settle(t.id)
	p.propagate(t.id)
}
