package region

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/Harshitk-cp/fastinf/internal/domain"
)

var (
	ErrInvalidRegion     = errors.New("region: invalid region graph")
	ErrUncoveredFactor   = errors.New("region: factor is not covered by any cluster")
	ErrRewireRegionGraph = errors.New("region: power number undefined, rewire the region graph")
	ErrPowerDenominator  = errors.New("region: zero power denominator")
	ErrCountingInvariant = errors.New("region: counting numbers do not sum to one")
)

const eps = 1e-12

// Region is a node of the region graph: a set of variables and the model
// factors whose potentials it owns.
type Region struct {
	Vars    []int `json:"vars"`
	Factors []int `json:"factors"`
}

// Powers are the exponents applied to the forward and the backward plain
// message when computing one directed region message.
type Powers struct {
	Forward  float64
	Backward float64
}

// Graph is a DAG of regions where every arc leads from a region to a strict
// subset of it.
type Graph struct {
	regions  []Region
	parents  [][]int
	children [][]int
	counting []float64
	external bool
}

func NewGraph() *Graph { return &Graph{} }

// AddRegion appends a region and returns its index. Counting numbers set
// before are dropped.
func (g *Graph) AddRegion(vars, factors []int) int {
	v := slices.Clone(vars)
	slices.Sort(v)
	f := slices.Clone(factors)
	slices.Sort(f)
	g.regions = append(g.regions, Region{Vars: v, Factors: f})
	g.parents = append(g.parents, nil)
	g.children = append(g.children, nil)
	g.counting = nil
	g.external = false
	return len(g.regions) - 1
}

// AddArc links parent to child. The child's variables must be a strict
// subset of the parent's.
func (g *Graph) AddArc(parent, child int) error {
	if parent < 0 || parent >= len(g.regions) || child < 0 || child >= len(g.regions) {
		return fmt.Errorf("%w: arc %d->%d out of range", ErrInvalidRegion, parent, child)
	}
	pv, cv := g.regions[parent].Vars, g.regions[child].Vars
	if len(cv) >= len(pv) || !subset(cv, pv) {
		return fmt.Errorf("%w: region %d %v is not a strict subset of %d %v", ErrInvalidRegion, child, cv, parent, pv)
	}
	if slices.Contains(g.children[parent], child) {
		return nil
	}
	g.children[parent] = append(g.children[parent], child)
	g.parents[child] = append(g.parents[child], parent)
	g.counting = nil
	return nil
}

func (g *Graph) Len() int { return len(g.regions) }

func (g *Graph) Region(r int) Region { return g.regions[r] }

func (g *Graph) Parents(r int) []int { return g.parents[r] }

func (g *Graph) Children(r int) []int { return g.children[r] }

// IsParent reports whether the arc p->c exists.
func (g *Graph) IsParent(p, c int) bool { return slices.Contains(g.children[p], c) }

// Neighbors returns the parents and children of r in ascending order.
func (g *Graph) Neighbors(r int) []int {
	out := append(slices.Clone(g.parents[r]), g.children[r]...)
	slices.Sort(out)
	return out
}

// Ancestors returns every region reachable upwards from r, ascending.
func (g *Graph) Ancestors(r int) []int {
	seen := make(map[int]bool)
	stack := slices.Clone(g.parents[r])
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[p] {
			continue
		}
		seen[p] = true
		stack = append(stack, g.parents[p]...)
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// TopologicalOrder lists regions so that every region follows its parents.
func (g *Graph) TopologicalOrder() []int {
	indeg := make([]int, len(g.regions))
	var ready []int
	for r := range g.regions {
		indeg[r] = len(g.parents[r])
		if indeg[r] == 0 {
			ready = append(ready, r)
		}
	}
	order := make([]int, 0, len(g.regions))
	for len(ready) > 0 {
		r := ready[0]
		ready = ready[1:]
		order = append(order, r)
		for _, c := range g.children[r] {
			indeg[c]--
			if indeg[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	return order
}

// BetheCountingNumbers computes c(r) = 1 - sum of c over the ancestors of r,
// which is 1 for every root.
func (g *Graph) BetheCountingNumbers() []float64 {
	c := make([]float64, len(g.regions))
	for _, r := range g.TopologicalOrder() {
		c[r] = 1
		for _, a := range g.Ancestors(r) {
			c[r] -= c[a]
		}
	}
	return c
}

// UseBetheCountingNumbers installs the Bethe counting numbers.
func (g *Graph) UseBetheCountingNumbers() {
	g.counting = g.BetheCountingNumbers()
	g.external = false
}

// SetCountingNumbers installs externally chosen counting numbers, one per
// region. Message powers are then derived from the variable regions.
func (g *Graph) SetCountingNumbers(c []float64) error {
	if len(c) != len(g.regions) {
		return fmt.Errorf("%w: %d counting numbers for %d regions", ErrInvalidRegion, len(c), len(g.regions))
	}
	g.counting = slices.Clone(c)
	g.external = true
	return nil
}

// CountingNumbers returns a copy of the installed counting numbers.
func (g *Graph) CountingNumbers() []float64 {
	g.ensureCounting()
	return slices.Clone(g.counting)
}

func (g *Graph) CountingNumber(r int) float64 {
	g.ensureCounting()
	return g.counting[r]
}

func (g *Graph) ensureCounting() {
	if g.counting == nil {
		g.UseBetheCountingNumbers()
	}
}

// MakeVarValidCountingNumbers keeps the counting numbers of the roots and
// recomputes every other region as 1 - sum over its ancestors.
func (g *Graph) MakeVarValidCountingNumbers() {
	g.ensureCounting()
	for _, r := range g.TopologicalOrder() {
		if len(g.parents[r]) == 0 {
			continue
		}
		c := 1.0
		for _, a := range g.Ancestors(r) {
			c -= g.counting[a]
		}
		g.counting[r] = c
	}
}

// CheckCountingNumbers verifies that the counting numbers of the regions
// containing each variable sum to one.
func (g *Graph) CheckCountingNumbers() error {
	g.ensureCounting()
	sums := make(map[int]float64)
	for r, reg := range g.regions {
		for _, v := range reg.Vars {
			sums[v] += g.counting[r]
		}
	}
	for v, s := range sums {
		if math.Abs(s-1) > 1e-9 {
			return fmt.Errorf("%w: variable %d sums to %v", ErrCountingInvariant, v, s)
		}
	}
	return nil
}

// PowerNumber is 1 for a root and 1/(2 - qR) otherwise, where
// qR = (1 - c(r)) / |parents(r)|.
func (g *Graph) PowerNumber(r int) (float64, error) {
	g.ensureCounting()
	p := len(g.parents[r])
	if p == 0 {
		return 1, nil
	}
	q := (1 - g.counting[r]) / float64(p)
	if math.Abs(2-q) < eps {
		return 0, fmt.Errorf("%w: region %d", ErrRewireRegionGraph, r)
	}
	return 1 / (2 - q), nil
}

// MessagePowers derives the exponents of every directed message.
func (g *Graph) MessagePowers() (map[domain.MessageKey]Powers, error) {
	g.ensureCounting()
	out := make(map[domain.MessageKey]Powers)
	for p := range g.regions {
		for _, c := range g.children[p] {
			down := domain.MessageKey{From: p, To: c}
			up := down.Reverse()
			if !g.external {
				beta, err := g.PowerNumber(c)
				if err != nil {
					return nil, err
				}
				out[down] = Powers{Forward: beta, Backward: beta - 1}
				out[up] = Powers{Forward: beta, Backward: beta - 1}
				continue
			}

			// the external powers are defined for single-variable children only
			if len(g.regions[c].Vars) != 1 {
				return nil, fmt.Errorf("%w: arc %d->%d ends in a region of %d variables",
					ErrInvalidRegion, p, c, len(g.regions[c].Vars))
			}
			d := g.containing(g.regions[c].Vars) - 1
			q := (1 - g.counting[c]) / float64(d)
			ca := g.counting[p]
			tmp := ca + 1 - q
			if math.Abs(tmp) < eps {
				return nil, fmt.Errorf("%w: arc %d->%d", ErrPowerDenominator, p, c)
			}
			out[down] = Powers{Forward: ca / tmp, Backward: 1/tmp - 1}
			out[up] = Powers{Forward: 1 / tmp, Backward: ca/tmp - 1}
		}
	}
	return out, nil
}

// containing counts the regions whose variables include vars.
func (g *Graph) containing(vars []int) int {
	n := 0
	for _, reg := range g.regions {
		if subset(vars, reg.Vars) {
			n++
		}
	}
	return n
}

// subset reports a ⊆ b for ascending slices.
func subset(a, b []int) bool {
	for _, v := range a {
		if _, ok := slices.BinarySearch(b, v); !ok {
			return false
		}
	}
	return true
}

func intersect(a, b []int) []int {
	var out []int
	for _, v := range a {
		if _, ok := slices.BinarySearch(b, v); ok {
			out = append(out, v)
		}
	}
	return out
}
