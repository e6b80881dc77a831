package scope

import (
	"slices"

	"github.com/Harshitk-cp/fastinf/internal/domain"
)

// Scopes maps every directed message to the sorted variables it is defined
// over. Both directions of an edge share the same scope.
type Scopes map[domain.MessageKey][]int

// Of returns the scope of k, nil when k carries no variables.
func (s Scopes) Of(k domain.MessageKey) []int { return s[k] }

// Separators scopes every edge by the plain intersection of its two
// cliques. A variable shared by a loop of cliques is then counted on every
// edge of the loop, so this suits graphs that are already trees or region
// graphs whose edges link a region to its subregion.
func Separators(m domain.Model) Scopes {
	out := make(Scopes)
	for i := 0; i < m.NumCliques(); i++ {
		for _, j := range m.Neighbors(i) {
			out[domain.MessageKey{From: i, To: j}] = intersect(m.VariablesOf(i), m.VariablesOf(j))
		}
	}
	return out
}

// Resolve scopes edges with one spanning forest per variable: among the
// edges whose separator holds the variable, only those on the forest carry
// it. This keeps every variable's cliques connected without letting it
// circulate around clique loops.
func Resolve(m domain.Model) Scopes {
	out := make(Scopes)
	byVar := make(map[int][]Edge)
	var order []int

	for i := 0; i < m.NumCliques(); i++ {
		for _, j := range m.Neighbors(i) {
			out[domain.MessageKey{From: i, To: j}] = nil
			if j < i {
				continue
			}
			for _, v := range intersect(m.VariablesOf(i), m.VariablesOf(j)) {
				if _, seen := byVar[v]; !seen {
					order = append(order, v)
				}
				byVar[v] = append(byVar[v], Edge{A: i, B: j})
			}
		}
	}

	slices.Sort(order)
	for _, v := range order {
		for _, e := range SpanningForest(byVar[v]) {
			ab := domain.MessageKey{From: e.A, To: e.B}
			out[ab] = append(out[ab], v)
			out[ab.Reverse()] = append(out[ab.Reverse()], v)
		}
	}
	return out
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
