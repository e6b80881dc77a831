package queue

import (
	"github.com/Harshitk-cp/fastinf/internal/domain"
)

// Manual visits keys in a fixed cyclic order, serving only those that are
// currently enqueued. Keys outside the order are appended to it the first
// time they are pushed.
type Manual struct {
	order    []domain.MessageKey
	pos      map[domain.MessageKey]int
	enqueued []bool
	cursor   int
	size     int
}

func NewManual(order []domain.MessageKey) *Manual {
	q := &Manual{pos: make(map[domain.MessageKey]int)}
	for _, k := range order {
		q.add(k)
	}
	return q
}

func (q *Manual) add(k domain.MessageKey) int {
	if i, ok := q.pos[k]; ok {
		return i
	}
	q.pos[k] = len(q.order)
	q.order = append(q.order, k)
	q.enqueued = append(q.enqueued, false)
	return len(q.order) - 1
}

func (q *Manual) Push(k domain.MessageKey, _ float64) {
	i := q.add(k)
	if !q.enqueued[i] {
		q.enqueued[i] = true
		q.size++
	}
}

func (q *Manual) Pop() (domain.MessageKey, bool) {
	if q.size == 0 {
		return domain.MessageKey{}, false
	}
	for {
		i := q.cursor
		q.cursor = (q.cursor + 1) % len(q.order)
		if q.enqueued[i] {
			q.enqueued[i] = false
			q.size--
			return q.order[i], true
		}
	}
}

func (q *Manual) PopN(n int) []domain.MessageKey { return popN(q, n) }

func (q *Manual) Top(n int) []domain.MessageKey {
	out := make([]domain.MessageKey, 0, min(n, q.size))
	for step, i := 0, q.cursor; step < len(q.order) && len(out) < n; step++ {
		if q.enqueued[i] {
			out = append(out, q.order[i])
		}
		i = (i + 1) % len(q.order)
	}
	return out
}

func (q *Manual) Remove(k domain.MessageKey) {
	if i, ok := q.pos[k]; ok && q.enqueued[i] {
		q.enqueued[i] = false
		q.size--
	}
}

func (q *Manual) Contains(k domain.MessageKey) bool {
	i, ok := q.pos[k]
	return ok && q.enqueued[i]
}

func (q *Manual) Len() int { return q.size }

func (q *Manual) Clear() {
	for i := range q.enqueued {
		q.enqueued[i] = false
	}
	q.size = 0
	q.cursor = 0
}
