package region

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
)

type listenerEntry struct {
	id int
	l  domain.FactorListener
}

// Model presents a region graph as a domain.Model: regions are the cliques,
// arcs are the edges and a region's potential is the product of the model
// factors it owns. Factor updates of the base model are forwarded as updates
// of the owning regions.
type Model struct {
	base       domain.Model
	graph      *Graph
	neighbors  [][]int
	potentials []*measure.Table
	owner      []int

	mu          sync.Mutex
	listeners   []listenerEntry
	nextID      int
	unsubscribe func()
}

// NewModel checks that every base factor is owned by exactly one region
// covering its scope.
func NewModel(base domain.Model, g *Graph) (*Model, error) {
	m := &Model{
		base:       base,
		graph:      g,
		neighbors:  make([][]int, g.Len()),
		potentials: make([]*measure.Table, g.Len()),
		owner:      make([]int, base.NumCliques()),
	}
	for f := range m.owner {
		m.owner[f] = -1
	}
	for r := 0; r < g.Len(); r++ {
		reg := g.Region(r)
		for _, v := range reg.Vars {
			if v < 0 || v >= base.NumVars() {
				return nil, fmt.Errorf("%w: region %d variable %d out of range", ErrInvalidRegion, r, v)
			}
		}
		for _, f := range reg.Factors {
			if f < 0 || f >= base.NumCliques() {
				return nil, fmt.Errorf("%w: region %d factor %d out of range", ErrInvalidRegion, r, f)
			}
			if m.owner[f] >= 0 {
				return nil, fmt.Errorf("%w: factor %d owned by regions %d and %d", ErrInvalidRegion, f, m.owner[f], r)
			}
			if !subset(base.VariablesOf(f), reg.Vars) {
				return nil, fmt.Errorf("%w: factor %d exceeds region %d", ErrInvalidRegion, f, r)
			}
			m.owner[f] = r
		}
		m.neighbors[r] = g.Neighbors(r)
	}
	for f, r := range m.owner {
		if r < 0 {
			return nil, fmt.Errorf("%w: factor %d", ErrUncoveredFactor, f)
		}
	}
	for r := range m.potentials {
		p, err := m.regionPotential(r)
		if err != nil {
			return nil, err
		}
		m.potentials[r] = p
	}
	m.unsubscribe = base.Subscribe(m)
	return m, nil
}

func (m *Model) regionPotential(r int) (*measure.Table, error) {
	reg := m.graph.Region(r)
	logSpace := len(reg.Factors) > 0 && m.base.PotentialOf(reg.Factors[0]).LogSpace()
	t, err := measure.New(reg.Vars, m.base.Cardinalities(reg.Vars), logSpace)
	if err != nil {
		return nil, err
	}
	for _, f := range reg.Factors {
		if err := t.Multiply(m.base.PotentialOf(f)); err != nil {
			return nil, fmt.Errorf("region %d: %w", r, err)
		}
	}
	return t, nil
}

// Close stops forwarding base factor updates.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Model) Graph() *Graph { return m.graph }

func (m *Model) NumCliques() int { return m.graph.Len() }

func (m *Model) NumVars() int { return m.base.NumVars() }

func (m *Model) VariablesOf(r int) []int { return m.graph.Region(r).Vars }

func (m *Model) Neighbors(r int) []int { return m.neighbors[r] }

func (m *Model) PotentialOf(r int) *measure.Table { return m.potentials[r] }

func (m *Model) Cardinality(v int) int { return m.base.Cardinality(v) }

func (m *Model) Cardinalities(vars []int) []int { return m.base.Cardinalities(vars) }

// Subscribe registers l for region potential updates.
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

// FactorsChanged rebuilds the potentials of the regions owning the changed
// factors and notifies the listeners with those regions.
func (m *Model) FactorsChanged(cliques []int) {
	var regions []int
	for _, f := range cliques {
		if f >= 0 && f < len(m.owner) {
			regions = append(regions, m.owner[f])
		}
	}
	slices.Sort(regions)
	regions = slices.Compact(regions)
	for _, r := range regions {
		// scopes are unchanged, so rebuilding cannot fail
		if p, err := m.regionPotential(r); err == nil {
			m.potentials[r] = p
		}
	}

	m.mu.Lock()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()
	for _, e := range listeners {
		e.l.FactorsChanged(regions)
	}
}
