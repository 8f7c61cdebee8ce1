// Package jobstate implements the job status state machine. It is pure:
// no I/O, no clock reads, no side effects.
package jobstate

import "github.com/schedora/engine/internal/core/engineerr"

// Status is one of the closed set of job lifecycle states.
type Status string

const (
	Pending   Status = "PENDING"
	Scheduled Status = "SCHEDULED"
	Running   Status = "RUNNING"
	Retrying  Status = "RETRYING"
	Success   Status = "SUCCESS"
	Failed    Status = "FAILED"
	Dead      Status = "DEAD"
	Canceled  Status = "CANCELED"
)

// transitions is the closed table of legal from->to edges.
var transitions = map[Status]map[Status]bool{
	Pending:   {Scheduled: true, Running: true, Canceled: true},
	Scheduled: {Running: true, Canceled: true},
	Running:   {Success: true, Failed: true, Retrying: true, Canceled: true},
	Failed:    {Retrying: true, Dead: true},
	Retrying:  {Scheduled: true},
	Success:   {},
	Dead:      {},
	Canceled:  {},
}

// CanTransition reports whether from->to is a legal edge.
func CanTransition(from, to Status) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// ValidateTransition returns an *engineerr.InvalidTransitionError when
// from->to is not a legal edge, nil otherwise.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return engineerr.NewInvalidTransition(string(from), string(to))
}

// IsTerminal reports whether a status has no outgoing edges.
func IsTerminal(s Status) bool {
	edges, ok := transitions[s]
	return ok && len(edges) == 0
}
