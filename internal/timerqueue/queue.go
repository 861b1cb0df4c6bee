package timerqueue

import (
	"container/heap"
	"time"
)

// Entry is a scheduled action waiting for its deadline.
type Entry struct {
	Deadline time.Time
	Action   func()

	seq   uint64
	index int
}

// Scheduled reports whether the entry is still waiting in a queue.
func (e *Entry) Scheduled() bool {
	return e.index >= 0
}

// Queue orders entries by deadline, breaking ties by insertion order so equal deadlines fire as scheduled.
type Queue struct {
	items entries
	seq   uint64
}

// Push registers an action and returns the handle needed to remove it later.
func (q *Queue) Push(deadline time.Time, action func()) *Entry {
	q.seq++
	e := &Entry{Deadline: deadline, Action: action, seq: q.seq}
	heap.Push(&q.items, e)
	return e
}

// Remove drops an entry that has not fired yet.
func (q *Queue) Remove(e *Entry) bool {
	if e == nil || e.index < 0 || e.index >= len(q.items) || q.items[e.index] != e {
		return false
	}
	heap.Remove(&q.items, e.index)
	return true
}

// PopDue removes and returns the earliest entry whose deadline is not after now.
func (q *Queue) PopDue(now time.Time) *Entry {
	if len(q.items) == 0 || q.items[0].Deadline.After(now) {
		return nil
	}
	return heap.Pop(&q.items).(*Entry)
}

// Next returns the earliest pending deadline.
func (q *Queue) Next() (time.Time, bool) {
	if len(q.items) == 0 {
		return time.Time{}, false
	}
	return q.items[0].Deadline, true
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return len(q.items)
}

// Clear drops every pending entry.
func (q *Queue) Clear() {
	for _, e := range q.items {
		e.index = -1
	}
	q.items = nil
}

type entries []*Entry

func (h entries) Len() int { return len(h) }

func (h entries) Less(i, j int) bool {
	if h[i].Deadline.Equal(h[j].Deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].Deadline.Before(h[j].Deadline)
}

func (h entries) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entries) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entries) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
