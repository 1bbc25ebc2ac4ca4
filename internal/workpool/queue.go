package workpool

import "container/heap"

type record struct {
	task     Task
	priority int
	sequence int64
}

// taskQueue is a max-heap on priority, FIFO by sequence within equal priority
type taskQueue []record

var _ heap.Interface = (*taskQueue)(nil)

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].sequence < q[j].sequence
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
}

func (q *taskQueue) Push(x any) {
	*q = append(*q, x.(record))
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	rec := old[n-1]
	old[n-1] = record{} // drop the task reference
	*q = old[:n-1]
	return rec
}
