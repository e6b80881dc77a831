package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
)

var ErrInvalidModel = errors.New("invalid model")

// Model is an in-memory graphical model: one clique per potential and an
// undirected clique adjacency.
type Model struct {
	cards      []int
	cliques    [][]int
	potentials []*measure.Table
	neighbors  [][]int
	byVar      [][]int

	mu        sync.Mutex
	listeners []listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	l  domain.FactorListener
}

// New builds a model whose cliques are adjacent whenever they share a
// variable.
func New(cards []int, potentials []*measure.Table) (*Model, error) {
	m, err := newModel(cards, potentials)
	if err != nil {
		return nil, err
	}
	m.neighbors = make([][]int, len(potentials))
	for i := range m.cliques {
		for j := range m.cliques {
			if i != j && sharesVar(m.cliques[i], m.cliques[j]) {
				m.neighbors[i] = append(m.neighbors[i], j)
			}
		}
	}
	return m, nil
}

// NewWithNeighbors builds a model with an explicit clique adjacency, which
// must be symmetric and free of self loops.
func NewWithNeighbors(cards []int, potentials []*measure.Table, neighbors [][]int) (*Model, error) {
	m, err := newModel(cards, potentials)
	if err != nil {
		return nil, err
	}
	if len(neighbors) != len(potentials) {
		return nil, fmt.Errorf("%w: %d adjacency lists for %d cliques", ErrInvalidModel, len(neighbors), len(potentials))
	}
	m.neighbors = make([][]int, len(neighbors))
	for i, nbrs := range neighbors {
		for _, j := range nbrs {
			if j < 0 || j >= len(potentials) || j == i {
				return nil, fmt.Errorf("%w: clique %d has bad neighbor %d", ErrInvalidModel, i, j)
			}
			if !slices.Contains(neighbors[j], i) {
				return nil, fmt.Errorf("%w: adjacency %d-%d is not symmetric", ErrInvalidModel, i, j)
			}
		}
		m.neighbors[i] = slices.Clone(nbrs)
		slices.Sort(m.neighbors[i])
		m.neighbors[i] = slices.Compact(m.neighbors[i])
	}
	return m, nil
}

func newModel(cards []int, potentials []*measure.Table) (*Model, error) {
	if len(potentials) == 0 {
		return nil, fmt.Errorf("%w: no potentials", ErrInvalidModel)
	}
	m := &Model{
		cards:      slices.Clone(cards),
		cliques:    make([][]int, len(potentials)),
		potentials: make([]*measure.Table, len(potentials)),
		byVar:      make([][]int, len(cards)),
	}
	for i, p := range potentials {
		if err := m.checkPotential(p); err != nil {
			return nil, fmt.Errorf("clique %d: %w", i, err)
		}
		m.cliques[i] = slices.Clone(p.Vars())
		m.potentials[i] = p
		for _, v := range p.Vars() {
			m.byVar[v] = append(m.byVar[v], i)
		}
	}
	return m, nil
}

func (m *Model) checkPotential(p *measure.Table) error {
	if p == nil {
		return fmt.Errorf("%w: nil potential", ErrInvalidModel)
	}
	for k, v := range p.Vars() {
		if v < 0 || v >= len(m.cards) {
			return fmt.Errorf("%w: unknown variable %d", ErrInvalidModel, v)
		}
		if p.Cards()[k] != m.cards[v] {
			return fmt.Errorf("%w: variable %d has cardinality %d, potential says %d",
				ErrInvalidModel, v, m.cards[v], p.Cards()[k])
		}
	}
	return nil
}

func sharesVar(a, b []int) bool {
	for _, v := range a {
		if _, ok := slices.BinarySearch(b, v); ok {
			return true
		}
	}
	return false
}

func (m *Model) NumCliques() int { return len(m.cliques) }

func (m *Model) NumVars() int { return len(m.cards) }

func (m *Model) VariablesOf(clique int) []int { return m.cliques[clique] }

func (m *Model) Neighbors(clique int) []int { return m.neighbors[clique] }

func (m *Model) PotentialOf(clique int) *measure.Table { return m.potentials[clique] }

func (m *Model) Cardinality(v int) int { return m.cards[v] }

func (m *Model) Cardinalities(vars []int) []int {
	out := make([]int, len(vars))
	for i, v := range vars {
		out[i] = m.cards[v]
	}
	return out
}

// CliquesOf returns the cliques whose scope contains v.
func (m *Model) CliquesOf(v int) []int { return m.byVar[v] }

// Subscribe registers l; the returned func removes it.
func (m *Model) Subscribe(l domain.FactorListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, listenerEntry{id: id, l: l})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners = slices.DeleteFunc(m.listeners, func(e listenerEntry) bool { return e.id == id })
	}
}

// SetPotentials replaces the potentials of the given cliques and notifies
// every listener once with the affected cliques in ascending order. The new
// potential must keep the clique's scope.
func (m *Model) SetPotentials(updates map[int]*measure.Table) error {
	changed := make([]int, 0, len(updates))
	for c, p := range updates {
		if c < 0 || c >= len(m.cliques) {
			return fmt.Errorf("%w: unknown clique %d", ErrInvalidModel, c)
		}
		if err := m.checkPotential(p); err != nil {
			return fmt.Errorf("clique %d: %w", c, err)
		}
		if !slices.Equal(p.Vars(), m.cliques[c]) {
			return fmt.Errorf("%w: clique %d scope %v cannot become %v", ErrInvalidModel, c, m.cliques[c], p.Vars())
		}
		changed = append(changed, c)
	}
	for _, c := range changed {
		m.potentials[c] = updates[c]
	}
	slices.Sort(changed)

	m.mu.Lock()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()
	for _, e := range listeners {
		e.l.FactorsChanged(changed)
	}
	return nil
}
