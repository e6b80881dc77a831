package bp

import (
	"context"
	"fmt"
	"slices"

	"github.com/Harshitk-cp/fastinf/internal/measure"
)

func (e *Engine) ensureBeliefs() error {
	if e.beliefs != nil {
		return nil
	}
	_, err := e.calcProbs(context.Background())
	return err
}

// Belief returns the normalized belief of clique c, running a propagation
// pass first if none is cached.
func (e *Engine) Belief(c int) (*measure.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c < 0 || c >= len(e.factors) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClique, c)
	}
	if err := e.ensureBeliefs(); err != nil {
		return nil, err
	}
	return e.beliefs[c].Dup(), nil
}

// BeliefOf returns the belief over vars, read off the smallest clique whose
// scope contains all of them.
func (e *Engine) BeliefOf(vars []int) (*measure.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.beliefOf(vars)
}

func (e *Engine) beliefOf(vars []int) (*measure.Table, error) {
	c, ok := e.smallestClique(vars)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoClique, vars)
	}
	if err := e.ensureBeliefs(); err != nil {
		return nil, err
	}
	b, err := e.beliefs[c].Marginalize(vars, e.cfg.MaxProduct)
	if err != nil {
		return nil, err
	}
	b.Normalize()
	return b, nil
}

func (e *Engine) smallestClique(vars []int) (int, bool) {
	best, size := -1, 0
	for c := range e.factors {
		scope := e.model.VariablesOf(c)
		if !containsAll(scope, vars) {
			continue
		}
		if n := e.factors[c].Size(); best < 0 || n < size {
			best, size = c, n
		}
	}
	return best, best >= 0
}

func containsAll(sorted, vars []int) bool {
	for _, v := range vars {
		if _, ok := slices.BinarySearch(sorted, v); !ok {
			return false
		}
	}
	return true
}

// MAPBelief returns a one-hot table at the most probable entry of the
// max-marginal of clique c.
func (e *Engine) MAPBelief(c int) (*measure.Table, error) {
	if !e.cfg.MaxProduct {
		return nil, ErrNotMaxProduct
	}
	b, err := e.Belief(c)
	if err != nil {
		return nil, err
	}
	return b.OneHot(b.Argmax()), nil
}

// MAPAssignment decodes every variable that appears in some clique from its
// max-marginal.
func (e *Engine) MAPAssignment() (map[int]int, error) {
	if !e.cfg.MaxProduct {
		return nil, ErrNotMaxProduct
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]int)
	for v := 0; v < e.model.NumVars(); v++ {
		if _, ok := e.smallestClique([]int{v}); !ok {
			continue
		}
		b, err := e.beliefOf([]int{v})
		if err != nil {
			return nil, err
		}
		out[v] = b.Argmax()
	}
	return out, nil
}
