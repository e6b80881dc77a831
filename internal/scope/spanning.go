package scope

import "slices"

// Edge is an undirected clique pair.
type Edge struct {
	A, B int
}

// SpanningForest returns a breadth-first spanning forest of the graph the
// edges describe. Each search starts at the first endpoint of the earliest
// edge not yet covered and visits neighbors in ascending order, so the
// result is deterministic. Returned edges point from the newly reached node
// to the node it was reached from.
func SpanningForest(edges []Edge) []Edge {
	adj := make(map[int][]int)
	var starts []int
	for _, e := range edges {
		if _, ok := adj[e.A]; !ok {
			starts = append(starts, e.A)
		}
		if _, ok := adj[e.B]; !ok {
			starts = append(starts, e.B)
		}
		adj[e.A] = append(adj[e.A], e.B)
		adj[e.B] = append(adj[e.B], e.A)
	}
	for n := range adj {
		slices.Sort(adj[n])
		adj[n] = slices.Compact(adj[n])
	}

	covered := make(map[int]bool, len(adj))
	var tree []Edge
	for _, root := range starts {
		if covered[root] {
			continue
		}
		covered[root] = true
		queue := []int{root}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, n := range adj[cur] {
				if !covered[n] {
					covered[n] = true
					queue = append(queue, n)
					tree = append(tree, Edge{A: n, B: cur})
				}
			}
		}
	}
	return tree
}
