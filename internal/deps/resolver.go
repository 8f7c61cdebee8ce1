// Package deps implements the dependency resolver (C4): given a job,
// whether its predecessors are satisfied, plus bulk ready/blocked
// queries. The set-based queries themselves live in the store layer
// (gormstore.JobRepo.ReadyJobs/BlockedJobs); this package adds the
// per-job predicate used outside of a bulk scan (e.g. by diagnostics
// callers that already hold a Job and its dependency list in hand).
package deps

import "github.com/schedora/engine/internal/store/gormstore"

var failedStatuses = map[string]bool{
	"FAILED":   true,
	"DEAD":     true,
	"CANCELED": true,
}

// DependenciesMet reports whether deps is empty or every predecessor has
// succeeded.
func DependenciesMet(dependencies []*gormstore.Job) bool {
	for _, dep := range dependencies {
		if dep.Status != "SUCCESS" {
			return false
		}
	}
	return true
}

// HasFailedDependencies reports whether any predecessor is in a
// failed/dead/canceled state.
func HasFailedDependencies(dependencies []*gormstore.Job) bool {
	for _, dep := range dependencies {
		if failedStatuses[dep.Status] {
			return true
		}
	}
	return false
}
