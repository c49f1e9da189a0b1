package netsim

import "container/heap"

type event struct {
	at  int64
	seq uint64
	run func()
}

// eventQueue orders events by time, then by the order they were scheduled in.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

func (q *eventQueue) peek() *event {
	if len(*q) == 0 {
		return nil
	}
	return (*q)[0]
}

var _ heap.Interface = (*eventQueue)(nil)
