package bp

import (
	"context"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
)

// Entries below this are treated as zero by the free-energy sums.
const tiny = 1e-250

// Partition returns the log partition function estimate for the current
// evidence.
func (e *Engine) Partition() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.logPartition()
}

func (e *Engine) logPartition() (float64, error) {
	if e.partitionValid {
		return e.partition, nil
	}
	if _, err := e.calcProbs(context.Background()); err != nil {
		return 0, err
	}
	u, h, err := e.energy(e.beliefs)
	if err != nil {
		return 0, err
	}
	e.partition = h - u
	e.entropy = h
	e.partitionValid = true
	if len(e.evidence) == 0 {
		e.initial = e.partition
		e.initialValid = true
	}
	return e.partition, nil
}

// InitialPartition is the log partition estimate without evidence. If it
// was never computed, the evidence is lifted for one pass and restored.
func (e *Engine) InitialPartition() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialPartition()
}

func (e *Engine) initialPartition() (float64, error) {
	if e.initialValid {
		return e.initial, nil
	}
	ev := e.evidence
	if err := e.changeEvidence(domain.Evidence{}); err != nil {
		return 0, err
	}
	if _, err := e.logPartition(); err != nil {
		return 0, err
	}
	if err := e.changeEvidence(ev); err != nil {
		return 0, err
	}
	return e.initial, nil
}

// EvidenceLogProbability estimates log P(evidence).
func (e *Engine) EvidenceLogProbability() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	z, err := e.logPartition()
	if err != nil {
		return 0, err
	}
	z0, err := e.initialPartition()
	if err != nil {
		return 0, err
	}
	return z - z0, nil
}

// Entropy returns the entropy term of the free energy.
func (e *Engine) Entropy() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.logPartition(); err != nil {
		return 0, err
	}
	return e.entropy, nil
}

// NegMutualInformation returns H(b_c) minus the entropies of the
// single-variable marginals of b_c, which is never positive.
func (e *Engine) NegMutualInformation(c int) (float64, error) {
	b, err := e.Belief(c)
	if err != nil {
		return 0, err
	}
	out := Entropy(b)
	for _, v := range b.Vars() {
		m, err := b.Marginalize([]int{v}, false)
		if err != nil {
			return 0, err
		}
		m.Normalize()
		out -= Entropy(m)
	}
	return out, nil
}

// betheFreeEnergy sums b ln(b/psi) over the cliques against the original
// potentials and removes the separator entropies once per edge.
func (e *Engine) betheFreeEnergy(beliefs []*measure.Table) (energy, entropy float64, err error) {
	for c, b := range beliefs {
		psi := e.model.PotentialOf(c)
		for i := 0; i < b.Size(); i++ {
			p := b.Value(i)
			if p < tiny {
				continue
			}
			entropy -= p * b.LogValue(i)
			energy -= p * psi.LogValue(i)
		}
		for _, n := range e.neighbors[c] {
			if n < c {
				continue
			}
			vars := e.scopes.Of(domain.MessageKey{From: c, To: n})
			if len(vars) == 0 {
				continue
			}
			s, err := b.Marginalize(vars, false)
			if err != nil {
				return 0, 0, err
			}
			s.Normalize()
			entropy -= Entropy(s)
		}
	}
	return energy, entropy, nil
}

// Entropy is -sum b ln b over the entries of b above the zero cutoff.
func Entropy(b *measure.Table) float64 {
	h := 0.0
	for i := 0; i < b.Size(); i++ {
		if p := b.Value(i); p >= tiny {
			h -= p * b.LogValue(i)
		}
	}
	return h
}
