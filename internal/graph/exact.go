package graph

import (
	"fmt"
	"math"

	"github.com/Harshitk-cp/fastinf/internal/domain"
)

// maxExactStates bounds the joint state space Exact is willing to enumerate.
const maxExactStates = 1 << 22

// ExactResult holds brute-force marginals and the log partition function.
type ExactResult struct {
	LogZ      float64
	Marginals [][]float64
	// MAP is the most probable joint assignment consistent with the evidence.
	MAP []int
}

// Exact enumerates every joint assignment consistent with evidence. It is a
// reference oracle for small models only.
func Exact(m domain.Model, evidence domain.Evidence) (*ExactResult, error) {
	n := m.NumVars()
	states := 1
	for v := 0; v < n; v++ {
		states *= m.Cardinality(v)
		if states > maxExactStates {
			return nil, fmt.Errorf("model too large for exact enumeration")
		}
	}

	res := &ExactResult{Marginals: make([][]float64, n), LogZ: math.Inf(-1)}
	for v := range res.Marginals {
		res.Marginals[v] = make([]float64, m.Cardinality(v))
	}

	assign := make([]int, n)
	full := make(map[int]int, n)
	weights := make([]float64, 0, states)
	configs := make([][]int, 0, states)
	best := math.Inf(-1)
	for {
		consistent := true
		for v, x := range evidence {
			if assign[v] != x {
				consistent = false
				break
			}
		}
		if consistent {
			for v, x := range assign {
				full[v] = x
			}
			lw := 0.0
			for c := 0; c < m.NumCliques(); c++ {
				p := m.PotentialOf(c)
				i, err := p.Index(full)
				if err != nil {
					return nil, err
				}
				lw += p.LogValue(i)
			}
			if lw > best {
				best = lw
				res.MAP = append([]int(nil), assign...)
			}
			weights = append(weights, lw)
			configs = append(configs, append([]int(nil), assign...))
		}
		if !advance(assign, m) {
			break
		}
	}

	// log-sum-exp over the enumerated weights
	if !math.IsInf(best, -1) {
		s := 0.0
		for _, lw := range weights {
			s += math.Exp(lw - best)
		}
		res.LogZ = best + math.Log(s)
		for k, lw := range weights {
			p := math.Exp(lw - res.LogZ)
			for v, x := range configs[k] {
				res.Marginals[v][x] += p
			}
		}
	}
	return res, nil
}

func advance(assign []int, m domain.Model) bool {
	for v := len(assign) - 1; v >= 0; v-- {
		assign[v]++
		if assign[v] < m.Cardinality(v) {
			return true
		}
		assign[v] = 0
	}
	return false
}
