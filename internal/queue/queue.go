package queue

import (
	"github.com/Harshitk-cp/fastinf/internal/domain"
)

// Queue orders pending message recomputations.
type Queue interface {
	// Push enqueues k. Weighted queues (re)position k by weight; the others
	// ignore it and keep an already queued key where it is.
	Push(k domain.MessageKey, weight float64)
	// Pop removes and returns the next key.
	Pop() (domain.MessageKey, bool)
	// PopN pops up to n keys.
	PopN(n int) []domain.MessageKey
	// Top returns up to n keys in pop order without removing them.
	Top(n int) []domain.MessageKey
	Remove(k domain.MessageKey)
	Contains(k domain.MessageKey) bool
	Len() int
	Clear()
}

// New returns the queue for the configured discipline.
func New(cfg domain.InferenceConfig) Queue {
	switch cfg.Queue {
	case domain.QueueUnweighted:
		return NewUnweighted()
	case domain.QueueManual:
		return NewManual(cfg.ManualOrder)
	default:
		return NewWeighted()
	}
}

func popN(q Queue, n int) []domain.MessageKey {
	out := make([]domain.MessageKey, 0, min(n, q.Len()))
	for i := 0; i < n; i++ {
		k, ok := q.Pop()
		if !ok {
			break
		}
		out = append(out, k)
	}
	return out
}
