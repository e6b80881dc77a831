package bank

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
	"github.com/Harshitk-cp/fastinf/internal/queue"
)

var (
	ErrUnknownMessage = errors.New("bank: message was never initialized")
	ErrDuplicate      = errors.New("bank: message already exists")
)

type entry struct {
	real *measure.Table
	next *measure.Table
}

// Bank stores the accepted (real) and the pending (next) value of every
// directed message and decides, through its queue, which messages are
// recomputed and committed next.
//
// A weighted bank re-weights the messages of the last batch on every Update
// and commits the heaviest ones; an unweighted bank commits the head of its
// queue and enqueues whatever the commits affect.
type Bank struct {
	cfg       domain.InferenceConfig
	weighted  bool
	affectAll bool
	neighbors [][]int

	queue     queue.Queue
	msgs      map[domain.MessageKey]*entry
	keys      []domain.MessageKey
	iteration []domain.MessageKey

	totalUpdated int
	totalDirty   int
}

type Option func(*Bank)

// WithAffectAll makes a commit of a->b also re-examine every message into b
// and the reverse message b->a.
func WithAffectAll(on bool) Option {
	return func(b *Bank) { b.affectAll = on }
}

// New returns an empty bank over the given clique adjacency.
func New(cfg domain.InferenceConfig, neighbors [][]int, opts ...Option) *Bank {
	b := &Bank{
		cfg:       cfg,
		weighted:  cfg.Queue == domain.QueueWeighted,
		neighbors: neighbors,
		queue:     queue.New(cfg),
		msgs:      make(map[domain.MessageKey]*entry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InitMessage installs value as both layers of k and marks k dirty.
func (b *Bank) InitMessage(k domain.MessageKey, value *measure.Table) error {
	if _, ok := b.msgs[k]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicate, k)
	}
	b.msgs[k] = &entry{real: value, next: value.Dup()}
	b.keys = append(b.keys, k)
	b.markDirty(k)
	return nil
}

// AddNewMessage installs a message after construction.
func (b *Bank) AddNewMessage(k domain.MessageKey, value *measure.Table) error {
	return b.InitMessage(k, value)
}

// RemoveMessage drops k from the store and the schedule.
func (b *Bank) RemoveMessage(k domain.MessageKey) {
	if _, ok := b.msgs[k]; !ok {
		return
	}
	delete(b.msgs, k)
	b.queue.Remove(k)
	b.keys = slices.DeleteFunc(b.keys, func(x domain.MessageKey) bool { return x == k })
	b.iteration = slices.DeleteFunc(b.iteration, func(x domain.MessageKey) bool { return x == k })
}

func (b *Bank) markDirty(k domain.MessageKey) {
	if b.weighted {
		b.iteration = append(b.iteration, k)
		return
	}
	b.queue.Push(k, 0)
}

// SetMessage stores value as the pending layer of k.
func (b *Bank) SetMessage(k domain.MessageKey, value *measure.Table) error {
	e, ok := b.msgs[k]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownMessage, k)
	}
	if !e.real.SameScope(value) {
		return fmt.Errorf("%w: message %v over %v got %v", measure.ErrScopeMismatch, k, e.real.Vars(), value.Vars())
	}
	e.next = value
	return nil
}

// Message returns the accepted value of k.
func (b *Bank) Message(k domain.MessageKey) (*measure.Table, error) {
	e, ok := b.msgs[k]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, k)
	}
	return e.real, nil
}

// Pending returns the not yet committed value of k.
func (b *Bank) Pending(k domain.MessageKey) (*measure.Table, error) {
	e, ok := b.msgs[k]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownMessage, k)
	}
	return e.next, nil
}

// Has reports whether k was initialized.
func (b *Bank) Has(k domain.MessageKey) bool {
	_, ok := b.msgs[k]
	return ok
}

// Keys returns all messages in initialization order.
func (b *Bank) Keys() []domain.MessageKey { return slices.Clone(b.keys) }

func (b *Bank) Len() int { return len(b.keys) }

// Iteration returns the messages to recompute before the next Update.
func (b *Bank) Iteration() []domain.MessageKey {
	if b.weighted {
		return slices.Clone(b.iteration)
	}
	return b.queue.Top(b.updateSize())
}

func (b *Bank) updateSize() int {
	if b.cfg.UpdateSize > 0 {
		return b.cfg.UpdateSize
	}
	n := 0
	for _, nbrs := range b.neighbors {
		n += len(nbrs)
	}
	return max(n, 1)
}

// Update commits a batch of pending messages and reports whether dirty
// messages remain.
func (b *Bank) Update() bool {
	if b.weighted {
		return b.updateWeighted()
	}
	return b.updateUnweighted()
}

func (b *Bank) updateWeighted() bool {
	for _, k := range b.iteration {
		e, ok := b.msgs[k]
		if !ok {
			continue
		}
		if b.isDifferent(e) {
			w, err := e.real.Weight(e.next, b.cfg.Weight)
			if err != nil {
				w = 0
			}
			b.queue.Push(k, w)
		} else {
			b.queue.Remove(k)
		}
	}
	b.totalDirty = b.queue.Len()

	var affected []domain.MessageKey
	seen := make(map[domain.MessageKey]bool)
	for _, k := range b.queue.PopN(b.updateSize()) {
		e := b.msgs[k]
		if !b.isDifferent(e) {
			continue
		}
		b.commit(e)
		for _, a := range b.Affected(k) {
			if !seen[a] {
				seen[a] = true
				affected = append(affected, a)
			}
		}
	}
	b.iteration = affected
	return b.totalDirty != 0
}

func (b *Bank) updateUnweighted() bool {
	for _, k := range b.queue.PopN(b.updateSize()) {
		e := b.msgs[k]
		if !b.isDifferent(e) {
			continue
		}
		b.commit(e)
		for _, a := range b.Affected(k) {
			b.queue.Push(a, 0)
		}
	}
	b.totalDirty = b.queue.Len()
	return b.totalDirty != 0
}

func (b *Bank) isDifferent(e *entry) bool {
	diff, err := e.real.Differs(e.next, b.cfg.Compare, b.cfg.Threshold)
	return err == nil && diff
}

func (b *Bank) commit(e *entry) {
	if b.cfg.Smoothing == 0 {
		e.real = e.next.Dup()
	} else {
		// scopes were checked in SetMessage
		_ = e.real.Smooth(e.next, b.cfg.Smoothing, b.cfg.LogSmooth)
	}
	b.totalUpdated++
}

// Affected lists the messages to re-examine after committing k = a->b:
// a->b itself under smoothing, b->c for every other neighbor c of b and,
// with affectAll, b->a and every c->b as well.
func (b *Bank) Affected(k domain.MessageKey) []domain.MessageKey {
	a, to := k.From, k.To
	var out []domain.MessageKey
	seen := make(map[domain.MessageKey]bool)
	add := func(m domain.MessageKey) {
		if !seen[m] && b.Has(m) {
			seen[m] = true
			out = append(out, m)
		}
	}
	if b.cfg.Smoothing != 0 {
		add(k)
	}
	for _, c := range b.neighbors[to] {
		if c != a || b.affectAll {
			add(domain.MessageKey{From: to, To: c})
		}
	}
	if b.affectAll {
		for _, c := range b.neighbors[to] {
			if c != a {
				add(domain.MessageKey{From: c, To: to})
			}
		}
	}
	return out
}

// TotalUpdated counts commits since the bank was built.
func (b *Bank) TotalUpdated() int { return b.totalUpdated }

// TotalDirty is the number of messages still waiting after the last Update.
func (b *Bank) TotalDirty() int { return b.totalDirty }
