package scheduler

import (
	"container/heap"
	"time"
)

// Wakeup is one armed trigger.
type Wakeup struct {
	JobID       string
	ResourceID  string
	TriggerTime time.Time
	DesiredTime time.Time
}

func (w Wakeup) before(o Wakeup) bool {
	if !w.TriggerTime.Equal(o.TriggerTime) {
		return w.TriggerTime.Before(o.TriggerTime)
	}
	return w.JobID < o.JobID
}

// wakeHeap is a min-heap on (TriggerTime, JobID).
type wakeHeap []Wakeup

func (h wakeHeap) Len() int           { return len(h) }
func (h wakeHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h wakeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *wakeHeap) Push(x any)        { *h = append(*h, x.(Wakeup)) }
func (h *wakeHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	*h = old[:n-1]
	return w
}

func (h wakeHeap) peek() (Wakeup, bool) {
	if len(h) == 0 {
		return Wakeup{}, false
	}
	return h[0], true
}

var _ heap.Interface = (*wakeHeap)(nil)
