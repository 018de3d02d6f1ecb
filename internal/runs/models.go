// Package runs persists pipeline run history in SQLite so operators can
// inspect what each scheduled execution did and where a failed run stopped.
package runs

import (
	"strings"
	"time"
)

// Status represents how far a run has progressed.
type Status string

const (
	StatusInit             Status = "init"
	StatusAuthenticated    Status = "authenticated"
	StatusRequested        Status = "requested"
	StatusAwaitingArtifact Status = "awaiting_artifact"
	StatusFetching         Status = "fetching"
	StatusExtracting       Status = "extracting"
	StatusImporting        Status = "importing"
	StatusDone             Status = "done"
	StatusFailed           Status = "failed"
)

// Flow names a pipeline variant.
type Flow string

const (
	FlowTransactions Flow = "transactions"
	FlowFiles        Flow = "files"
)

var allStatuses = []Status{
	StatusInit,
	StatusAuthenticated,
	StatusRequested,
	StatusAwaitingArtifact,
	StatusFetching,
	StatusExtracting,
	StatusImporting,
	StatusDone,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus normalizes user-supplied status text.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Terminal reports whether a run in this status is finished.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Run is one pipeline execution.
type Run struct {
	ID           string
	Flow         Flow
	Status       Status
	StartDate    string
	EndDate      string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
