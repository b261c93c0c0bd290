package model

import (
	"fmt"
	"strings"
)

// Status is a workflow state identified by its short code.
type Status string

const (
	StatusWaitingForDependency  Status = "WFD"
	StatusReadyToStart          Status = "RTS"
	StatusWorkInProgress        Status = "WIP"
	StatusPendingReview         Status = "PREV"
	StatusHasRevision           Status = "HREV"
	StatusDependencyHasRevision Status = "DREV"
	StatusOnHold                Status = "OH"
	StatusStopped               Status = "STOP"
	StatusCompleted             Status = "CMPL"
)

// Leaf statuses in workflow order.
var TaskStatuses = []Status{
	StatusWaitingForDependency,
	StatusReadyToStart,
	StatusWorkInProgress,
	StatusPendingReview,
	StatusHasRevision,
	StatusDependencyHasRevision,
	StatusOnHold,
	StatusStopped,
	StatusCompleted,
}

// ContainerStatuses are the only states a task with children can derive.
var ContainerStatuses = []Status{
	StatusWaitingForDependency,
	StatusReadyToStart,
	StatusWorkInProgress,
	StatusCompleted,
}

var statusNames = map[Status]string{
	StatusWaitingForDependency:  "Waiting For Dependency",
	StatusReadyToStart:          "Ready To Start",
	StatusWorkInProgress:        "Work In Progress",
	StatusPendingReview:         "Pending Review",
	StatusHasRevision:           "Has Revision",
	StatusDependencyHasRevision: "Dependency Has Revision",
	StatusOnHold:                "On Hold",
	StatusStopped:               "Stopped",
	StatusCompleted:             "Completed",
}

//	+--------- WFD
//	|+-------- RTS
//	||+------- WIP
//	|||+------ PREV
//	||||+----- HREV
//	|||||+---- DREV
//	||||||+--- OH
//	|||||||+-- STOP
//	||||||||+- CMPL
//	0b000000000
var statusBits = map[Status]int{
	StatusWaitingForDependency:  0b100000000,
	StatusReadyToStart:          0b010000000,
	StatusWorkInProgress:        0b001000000,
	StatusPendingReview:         0b000100000,
	StatusHasRevision:           0b000010000,
	StatusDependencyHasRevision: 0b000001000,
	StatusOnHold:                0b000000100,
	StatusStopped:               0b000000010,
	StatusCompleted:             0b000000001,
}

// StatusList resolves a status by code, case-insensitively.
type StatusList map[string]Status

// DefaultStatusList holds every leaf status keyed by its upper-case code.
var DefaultStatusList = func() StatusList {
	l := make(StatusList, len(TaskStatuses))
	for _, s := range TaskStatuses {
		l[string(s)] = s
	}
	return l
}()

// Get returns the status with the given code, ignoring case.
func (l StatusList) Get(code string) (Status, bool) {
	s, ok := l[strings.ToUpper(strings.TrimSpace(code))]
	return s, ok
}

// ParseStatus resolves a status code, ignoring case.
func ParseStatus(code string) (Status, error) {
	s, ok := DefaultStatusList.Get(code)
	if !ok {
		return "", fmt.Errorf("unknown status %q", code)
	}
	return s, nil
}

// Bit returns the flag used when statuses are combined into a binary status.
func (s Status) Bit() int {
	return statusBits[s]
}

// Name returns the human readable status name.
func (s Status) Name() string {
	return statusNames[s]
}

// Is compares status codes case-insensitively.
func (s Status) Is(code string) bool {
	return strings.EqualFold(string(s), strings.TrimSpace(code))
}

// IsValid reports whether s is a known leaf status.
func (s Status) IsValid() bool {
	_, ok := statusBits[s]
	return ok
}

// BinaryStatus ORs together the bits of the distinct statuses given.
func BinaryStatus(statuses []Status) int {
	binary := 0
	for _, s := range statuses {
		binary |= s.Bit()
	}
	return binary
}

// Operation names an externally driven workflow transition.
type Operation string

const (
	OpCreateTimeLog   Operation = "create_time_log"
	OpDeleteTimeLog   Operation = "delete_time_log"
	OpRequestReview   Operation = "request_review"
	OpApprove         Operation = "approve"
	OpRequestRevision Operation = "request_revision"
	OpHold            Operation = "hold"
	OpStop            Operation = "stop"
	OpResume          Operation = "resume"
)

// Statuses a leaf must be in for each external operation.
var allowedFrom = map[Operation]map[Status]bool{
	OpCreateTimeLog: {
		StatusReadyToStart:          true,
		StatusWorkInProgress:        true,
		StatusHasRevision:           true,
		StatusDependencyHasRevision: true,
	},
	OpDeleteTimeLog: {
		StatusReadyToStart:          true,
		StatusWorkInProgress:        true,
		StatusHasRevision:           true,
		StatusDependencyHasRevision: true,
	},
	OpRequestReview: {
		StatusWorkInProgress: true,
	},
	OpApprove: {
		StatusPendingReview: true,
	},
	OpRequestRevision: {
		StatusPendingReview: true,
		StatusCompleted:     true,
	},
	OpHold: {
		StatusWorkInProgress:        true,
		StatusDependencyHasRevision: true,
		StatusOnHold:                true,
	},
	OpStop: {
		StatusWorkInProgress:        true,
		StatusDependencyHasRevision: true,
		StatusStopped:               true,
	},
	OpResume: {
		StatusOnHold:  true,
		StatusStopped: true,
	},
}

// AllowedFrom returns the statuses op may start from, in workflow order.
func AllowedFrom(op Operation) []Status {
	allowed := allowedFrom[op]
	out := make([]Status, 0, len(allowed))
	for _, s := range TaskStatuses {
		if allowed[s] {
			out = append(out, s)
		}
	}
	return out
}

// CanApply reports whether op is legal from status from.
func CanApply(op Operation, from Status) bool {
	return allowedFrom[op][from]
}

// ReviewStatus is the vote state of a single review.
type ReviewStatus string

const (
	ReviewStatusNew               ReviewStatus = "NEW"
	ReviewStatusRequestedRevision ReviewStatus = "RREV"
	ReviewStatusApproved          ReviewStatus = "APP"
)

// IsDecided reports whether the reviewer has voted.
func (s ReviewStatus) IsDecided() bool {
	return s == ReviewStatusApproved || s == ReviewStatusRequestedRevision
}
