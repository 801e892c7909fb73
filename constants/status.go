package constants

import "sort"

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued     JobStatus = "QUEUED"     // created, waiting for a worker
	JobStatusProcessing JobStatus = "PROCESSING" // background task running
	JobStatusDone       JobStatus = "DONE"       // all pages + metadata persisted
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure, error_message set
)

// transitions lists every legal forward edge of the job state machine.
// Anything not listed is an invalid transition, including every edge out
// of a terminal state.
var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusDone, JobStatusFailed},
}

// CanTransition reports whether moving from -> to is a legal edge.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PredecessorsOf returns the statuses that may legally move to next, in a
// stable order. Empty for QUEUED and for unknown statuses: nothing may
// re-enter the initial state.
func PredecessorsOf(next JobStatus) []JobStatus {
	var out []JobStatus
	for from, tos := range transitions {
		for _, to := range tos {
			if to == next {
				out = append(out, from)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTerminal reports whether a status can never change again.
func IsTerminal(s JobStatus) bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// IsValidStatus reports whether s is one of the known status values.
func IsValidStatus(s JobStatus) bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}
