package scheduler

import (
	"container/heap"

	"github.com/localfirst/agentcore/core"
)

// priorityQueue orders pending tasks Critical > High > Normal > Low,
// then created_at ascending, then id ascending as the final
// tie-breaker.
type priorityQueue []*core.Task

func (q priorityQueue) Len() int { return len(q) }

func (q priorityQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	if !q[i].CreatedAt.Equal(q[j].CreatedAt) {
		return q[i].CreatedAt.Before(q[j].CreatedAt)
	}
	return q[i].ID < q[j].ID
}

func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *priorityQueue) Push(x interface{}) {
	*q = append(*q, x.(*core.Task))
}

func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// taskQueue wraps priorityQueue behind heap.Interface with the methods
// the scheduler actually needs.
type taskQueue struct {
	items priorityQueue
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{items: priorityQueue{}}
	heap.Init(&q.items)
	return q
}

func (q *taskQueue) push(t *core.Task) {
	heap.Push(&q.items, t)
}

func (q *taskQueue) pop() (*core.Task, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	return heap.Pop(&q.items).(*core.Task), true
}

func (q *taskQueue) len() int { return len(q.items) }
