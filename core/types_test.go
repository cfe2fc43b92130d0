package core

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskValidateTerminalRequiresCompletedAt(t *testing.T) {
	task := &Task{Status: StatusCompleted, Progress: 1.0, CurrentStep: 0}
	assert.Error(t, task.Validate())

	now := time.Now()
	task.CompletedAt = &now
	assert.NoError(t, task.Validate())
}

func TestTaskValidateCurrentStepBound(t *testing.T) {
	task := &Task{Status: StatusPending, Steps: []Step{{}}, CurrentStep: 2}
	assert.Error(t, task.Validate())
}

func TestCanTransitionLegalGraph(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusWaitingApproval))
	assert.True(t, CanTransition(StatusPending, StatusExecuting))
	assert.True(t, CanTransition(StatusExecuting, StatusPaused))
	assert.True(t, CanTransition(StatusPaused, StatusExecuting))
	assert.False(t, CanTransition(StatusCompleted, StatusExecuting))
	assert.False(t, CanTransition(StatusPending, StatusCompleted))
}

func TestTaskStatusRandomWalkRejectsIllegalTransitions(t *testing.T) {
	all := []TaskStatus{
		StatusPending, StatusWaitingApproval, StatusExecuting, StatusPaused,
		StatusCompleted, StatusFailed, StatusCancelled,
	}
	r := rand.New(rand.NewSource(42))

	for walk := 0; walk < 100; walk++ {
		cur := StatusPending
		for i := 0; i < 200 && !cur.IsTerminal(); i++ {
			next := all[r.Intn(len(all))]
			if !CanTransition(cur, next) {
				// Terminal states admit nothing; non-terminal states
				// admit only the drawn edges.
				if cur.IsTerminal() {
					t.Fatalf("walked into terminal state %s", cur)
				}
				continue
			}
			cur = next
		}
	}

	for _, terminal := range []TaskStatus{StatusCompleted, StatusFailed, StatusCancelled} {
		for _, to := range all {
			assert.False(t, CanTransition(terminal, to), "%s -> %s must be illegal", terminal, to)
		}
	}
}

func TestPriorityOrderingStrings(t *testing.T) {
	assert.True(t, PriorityCritical > PriorityHigh)
	assert.True(t, PriorityHigh > PriorityNormal)
	assert.True(t, PriorityNormal > PriorityLow)
	assert.Equal(t, "critical", PriorityCritical.String())
}
