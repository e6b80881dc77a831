package queue

import (
	"container/heap"
	"slices"

	"github.com/Harshitk-cp/fastinf/internal/domain"
)

type item struct {
	key    domain.MessageKey
	weight float64
	seq    uint64
	index  int
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight > h[j].weight
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Weighted serves the heaviest key first. Equal weights pop in the order
// they were pushed; pushing a queued key again counts as a new insertion.
type Weighted struct {
	h     itemHeap
	items map[domain.MessageKey]*item
	seq   uint64
}

func NewWeighted() *Weighted {
	return &Weighted{items: make(map[domain.MessageKey]*item)}
}

func (q *Weighted) Push(k domain.MessageKey, weight float64) {
	q.seq++
	if it, ok := q.items[k]; ok {
		it.weight = weight
		it.seq = q.seq
		heap.Fix(&q.h, it.index)
		return
	}
	it := &item{key: k, weight: weight, seq: q.seq}
	q.items[k] = it
	heap.Push(&q.h, it)
}

func (q *Weighted) Pop() (domain.MessageKey, bool) {
	if len(q.h) == 0 {
		return domain.MessageKey{}, false
	}
	it := heap.Pop(&q.h).(*item)
	delete(q.items, it.key)
	return it.key, true
}

func (q *Weighted) PopN(n int) []domain.MessageKey { return popN(q, n) }

func (q *Weighted) Top(n int) []domain.MessageKey {
	sorted := slices.Clone(q.h)
	slices.SortFunc(sorted, func(a, b *item) int {
		switch {
		case a.weight > b.weight:
			return -1
		case a.weight < b.weight:
			return 1
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	out := make([]domain.MessageKey, 0, min(n, len(sorted)))
	for _, it := range sorted[:min(n, len(sorted))] {
		out = append(out, it.key)
	}
	return out
}

// Weight returns the queued weight of k.
func (q *Weighted) Weight(k domain.MessageKey) (float64, bool) {
	it, ok := q.items[k]
	if !ok {
		return 0, false
	}
	return it.weight, true
}

func (q *Weighted) Remove(k domain.MessageKey) {
	it, ok := q.items[k]
	if !ok {
		return
	}
	heap.Remove(&q.h, it.index)
	delete(q.items, k)
}

func (q *Weighted) Contains(k domain.MessageKey) bool {
	_, ok := q.items[k]
	return ok
}

func (q *Weighted) Len() int { return len(q.h) }

func (q *Weighted) Clear() {
	q.h = nil
	clear(q.items)
}
