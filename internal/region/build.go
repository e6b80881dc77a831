package region

import (
	"fmt"
	"slices"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
)

// Cluster builds a Kikuchi region graph. Every factor goes to the first
// cluster containing its scope; then generations of pairwise intersections
// are added until no new region appears.
func Cluster(m domain.Model, clusters [][]int) (*Graph, error) {
	g, err := clusterGeneration(m, clusters)
	if err != nil {
		return nil, err
	}
	prevBegin, prevEnd := 0, g.Len()
	for {
		next := g.intersections(prevEnd)
		if len(next) == 0 {
			break
		}
		begin := g.Len()
		for _, vars := range next {
			g.AddRegion(vars, nil)
		}
		if err := g.addGenerationArcs(prevBegin, prevEnd, begin, g.Len()); err != nil {
			return nil, err
		}
		prevBegin, prevEnd = begin, g.Len()
	}
	g.UseBetheCountingNumbers()
	return g, nil
}

// TwoLayer builds the clusters plus one region per variable of every
// multi-variable cluster, each linked to all clusters containing it.
func TwoLayer(m domain.Model, clusters [][]int) (*Graph, error) {
	g, err := clusterGeneration(m, clusters)
	if err != nil {
		return nil, err
	}
	top := g.Len()
	var vars []int
	for r := 0; r < top; r++ {
		if v := g.regions[r].Vars; len(v) > 1 {
			vars = append(vars, v...)
		}
	}
	slices.Sort(vars)
	vars = slices.Compact(vars)
	for _, v := range vars {
		g.AddRegion([]int{v}, nil)
	}
	if err := g.addGenerationArcs(0, top, top, g.Len()); err != nil {
		return nil, err
	}
	g.UseBetheCountingNumbers()
	return g, nil
}

// Bethe builds one region per variable and one per multi-variable factor.
// A univariate factor joins the first factor region over its variable, or
// the variable region when there is none.
func Bethe(m domain.Model) (*Graph, error) {
	g := NewGraph()
	for v := 0; v < m.NumVars(); v++ {
		g.AddRegion([]int{v}, nil)
	}

	factorRegion := make(map[int]int)
	var unary []int
	for c := 0; c < m.NumCliques(); c++ {
		vars := m.VariablesOf(c)
		switch len(vars) {
		case 0:
			return nil, fmt.Errorf("%w: factor %d has an empty scope", ErrInvalidRegion, c)
		case 1:
			unary = append(unary, c)
			continue
		}
		r := g.AddRegion(vars, []int{c})
		for _, v := range vars {
			if _, ok := factorRegion[v]; !ok {
				factorRegion[v] = r
			}
			if err := g.AddArc(r, v); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range unary {
		v := m.VariablesOf(c)[0]
		r, ok := factorRegion[v]
		if !ok {
			r = v
		}
		g.regions[r].Factors = append(g.regions[r].Factors, c)
	}
	g.UseBetheCountingNumbers()
	return g, nil
}

// FactorClusters returns the distinct factor scopes that are not contained
// in another scope, in factor order.
func FactorClusters(m domain.Model) [][]int {
	var scopes [][]int
	for c := 0; c < m.NumCliques(); c++ {
		if v := m.VariablesOf(c); len(v) > 0 {
			scopes = append(scopes, v)
		}
	}
	var out [][]int
	for i, s := range scopes {
		keep := true
		for j, o := range scopes {
			if i == j || !subset(s, o) {
				continue
			}
			// of two equal scopes the first one stays
			if len(s) < len(o) || j < i {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, slices.Clone(s))
		}
	}
	return out
}

func clusterGeneration(m domain.Model, clusters [][]int) (*Graph, error) {
	g := NewGraph()
	for i, c := range clusters {
		for _, v := range c {
			if v < 0 || v >= m.NumVars() {
				return nil, fmt.Errorf("%w: cluster variable %d out of range", ErrInvalidRegion, v)
			}
		}
		if _, err := measure.Entries(m.Cardinalities(c)); err != nil {
			return nil, fmt.Errorf("cluster %d: %w", i, err)
		}
		g.AddRegion(c, nil)
	}
	for i := range g.regions {
		for j := range g.regions {
			if i != j && subset(g.regions[i].Vars, g.regions[j].Vars) {
				return nil, fmt.Errorf("%w: cluster %d is contained in cluster %d", ErrInvalidRegion, i, j)
			}
		}
	}
	for f := 0; f < m.NumCliques(); f++ {
		vars := m.VariablesOf(f)
		placed := false
		for r := range g.regions {
			if subset(vars, g.regions[r].Vars) {
				g.regions[r].Factors = append(g.regions[r].Factors, f)
				placed = true
				break
			}
		}
		if !placed {
			return nil, fmt.Errorf("%w: factor %d over %v", ErrUncoveredFactor, f, vars)
		}
	}
	return g, nil
}

// intersections returns the next generation: non-empty pairwise
// intersections among the first end regions that are not already regions,
// without repeats or regions contained in another of the generation.
func (g *Graph) intersections(end int) [][]int {
	var next [][]int
	for i := 0; i < end; i++ {
		for j := i + 1; j < end; j++ {
			tmp := intersect(g.regions[i].Vars, g.regions[j].Vars)
			if len(tmp) == 0 {
				continue
			}
			found := false
			for k := 0; k < end; k++ {
				if slices.Equal(tmp, g.regions[k].Vars) {
					found = true
					break
				}
			}
			if !found {
				next = append(next, tmp)
			}
		}
	}
	for i := 0; i < len(next); i++ {
		for j := range next {
			if i != j && subset(next[i], next[j]) {
				next = slices.Delete(next, i, i+1)
				i--
				break
			}
		}
	}
	return next
}

// addGenerationArcs links the new generation [begin, end) below every
// earlier region containing it. A region older than the previous
// generation is skipped when one of its children already covers the new
// region.
func (g *Graph) addGenerationArcs(prevBegin, prevEnd, begin, end int) error {
	for p := 0; p < prevEnd; p++ {
		for c := begin; c < end; c++ {
			if !subset(g.regions[c].Vars, g.regions[p].Vars) {
				continue
			}
			if p < prevBegin && g.coveredByChild(p, c) {
				continue
			}
			if err := g.AddArc(p, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) coveredByChild(p, c int) bool {
	for _, mid := range g.children[p] {
		if subset(g.regions[c].Vars, g.regions[mid].Vars) {
			return true
		}
	}
	return false
}
