package region

import "github.com/Harshitk-cp/fastinf/internal/measure"

const tiny = 1e-250

// freeEnergy weights each region's energy U(r) = -sum b ln psi_r and entropy
// H(r) = -sum b ln b by its counting number.
func (r *Engine) freeEnergy(beliefs []*measure.Table) (energy, entropy float64, err error) {
	for reg, b := range beliefs {
		c := r.graph.counting[reg]
		if c == 0 {
			continue
		}
		psi := r.model.PotentialOf(reg)
		var u, h float64
		for i := 0; i < b.Size(); i++ {
			p := b.Value(i)
			if p < tiny {
				continue
			}
			h -= p * b.LogValue(i)
			u -= p * psi.LogValue(i)
		}
		energy += c * u
		entropy += c * h
	}
	return energy, entropy, nil
}
