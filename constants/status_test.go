package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from JobStatus
		to   JobStatus
		want bool
	}{
		{"queued to processing", JobStatusQueued, JobStatusProcessing, true},
		{"queued to failed", JobStatusQueued, JobStatusFailed, true},
		{"processing to done", JobStatusProcessing, JobStatusDone, true},
		{"processing to failed", JobStatusProcessing, JobStatusFailed, true},
		{"queued to done skips processing", JobStatusQueued, JobStatusDone, false},
		{"processing back to queued", JobStatusProcessing, JobStatusQueued, false},
		{"done is terminal", JobStatusDone, JobStatusProcessing, false},
		{"failed is terminal", JobStatusFailed, JobStatusQueued, false},
		{"failed to done", JobStatusFailed, JobStatusDone, false},
		{"self transition", JobStatusProcessing, JobStatusProcessing, false},
		{"unknown from", JobStatus("BOGUS"), JobStatusDone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatesHaveNoOutgoingEdges(t *testing.T) {
	all := []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusDone, JobStatusFailed}
	for _, from := range all {
		if !IsTerminal(from) {
			continue
		}
		for _, to := range all {
			assert.Falsef(t, CanTransition(from, to), "terminal %s must not reach %s", from, to)
		}
	}
}

func TestPredecessorsOf(t *testing.T) {
	assert.Equal(t, []JobStatus{JobStatusQueued}, PredecessorsOf(JobStatusProcessing))
	assert.Equal(t, []JobStatus{JobStatusProcessing}, PredecessorsOf(JobStatusDone))
	assert.ElementsMatch(t, []JobStatus{JobStatusQueued, JobStatusProcessing}, PredecessorsOf(JobStatusFailed))
	assert.Empty(t, PredecessorsOf(JobStatusQueued), "nothing may re-enter the initial state")
	assert.Empty(t, PredecessorsOf(JobStatus("BOGUS")))
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus(JobStatusQueued))
	assert.True(t, IsValidStatus(JobStatusFailed))
	assert.False(t, IsValidStatus(JobStatus("queued"))) // case-sensitive on purpose
	assert.False(t, IsValidStatus(JobStatus("")))
}
