package queue

import (
	"slices"

	"github.com/Harshitk-cp/fastinf/internal/domain"
)

// Unweighted is a FIFO without duplicates.
type Unweighted struct {
	items    []domain.MessageKey
	enqueued map[domain.MessageKey]bool
}

func NewUnweighted() *Unweighted {
	return &Unweighted{enqueued: make(map[domain.MessageKey]bool)}
}

func (q *Unweighted) Push(k domain.MessageKey, _ float64) {
	if q.enqueued[k] {
		return
	}
	q.enqueued[k] = true
	q.items = append(q.items, k)
}

func (q *Unweighted) Pop() (domain.MessageKey, bool) {
	if len(q.items) == 0 {
		return domain.MessageKey{}, false
	}
	k := q.items[0]
	q.items = q.items[1:]
	delete(q.enqueued, k)
	return k, true
}

func (q *Unweighted) PopN(n int) []domain.MessageKey { return popN(q, n) }

func (q *Unweighted) Top(n int) []domain.MessageKey {
	return slices.Clone(q.items[:min(n, len(q.items))])
}

func (q *Unweighted) Remove(k domain.MessageKey) {
	if !q.enqueued[k] {
		return
	}
	delete(q.enqueued, k)
	q.items = slices.DeleteFunc(q.items, func(x domain.MessageKey) bool { return x == k })
}

func (q *Unweighted) Contains(k domain.MessageKey) bool { return q.enqueued[k] }

func (q *Unweighted) Len() int { return len(q.items) }

func (q *Unweighted) Clear() {
	q.items = nil
	clear(q.enqueued)
}
