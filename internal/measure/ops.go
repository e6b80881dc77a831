package measure

import (
	"fmt"
	"math"
	"slices"
)

// strideIn returns, for every variable of t, its stride inside sub
// (zero when sub does not contain it). It fails when sub has a variable t
// lacks.
func (t *Table) strideIn(sub *Table) ([]int, error) {
	out := make([]int, len(t.vars))
	found := 0
	for k, v := range t.vars {
		if p := sub.position(v); p >= 0 {
			out[k] = sub.strides[p]
			found++
		}
	}
	if found != len(sub.vars) {
		return nil, fmt.Errorf("%w: %v is not a subset of %v", ErrScopeMismatch, sub.vars, t.vars)
	}
	return out, nil
}

// project calls fn with every entry i of t and the matching entry j of the
// sub-scope whose strides are given.
func (t *Table) project(sub []int, fn func(i, j int)) {
	counter := make([]int, len(t.vars))
	j := 0
	for i := range t.vals {
		fn(i, j)
		for k := len(t.vars) - 1; k >= 0; k-- {
			counter[k]++
			j += sub[k]
			if counter[k] < t.cards[k] {
				break
			}
			j -= sub[k] * t.cards[k]
			counter[k] = 0
		}
	}
}

// Multiply multiplies o into t. The scope of o must be a subset of t's.
func (t *Table) Multiply(o *Table) error {
	sub, err := t.strideIn(o)
	if err != nil {
		return err
	}
	switch {
	case t.log && o.log:
		t.project(sub, func(i, j int) { t.vals[i] += o.vals[j] })
	case !t.log && !o.log:
		t.project(sub, func(i, j int) { t.vals[i] *= o.vals[j] })
	default:
		t.project(sub, func(i, j int) { t.vals[i] = t.encode(t.decode(t.vals[i]) * o.decode(o.vals[j])) })
	}
	return nil
}

// Marginalize sums (or maximizes, when maxProduct is set) out every
// variable not in vars. vars must be a subset of the scope.
func (t *Table) Marginalize(vars []int, maxProduct bool) (*Table, error) {
	sv := slices.Clone(vars)
	slices.Sort(sv)
	if slices.Equal(sv, t.vars) {
		return t.Dup(), nil
	}
	cards := make([]int, len(sv))
	for i, v := range sv {
		p := t.position(v)
		if p < 0 {
			return nil, fmt.Errorf("%w: %v is not a subset of %v", ErrScopeMismatch, vars, t.vars)
		}
		cards[i] = t.cards[p]
	}
	out := newSorted(sv, cards, t.log)
	sub, err := t.strideIn(out)
	if err != nil {
		return nil, err
	}

	init := t.encode(0)
	for i := range out.vals {
		out.vals[i] = init
	}
	switch {
	case maxProduct:
		t.project(sub, func(i, j int) {
			if t.vals[i] > out.vals[j] {
				out.vals[j] = t.vals[i]
			}
		})
	case t.log:
		t.project(sub, func(i, j int) { out.vals[j] = logAddExp(out.vals[j], t.vals[i]) })
	default:
		t.project(sub, func(i, j int) { out.vals[j] += t.vals[i] })
	}
	return out, nil
}

// MarginalizeAndMultiply marginalizes t onto o's scope and multiplies the
// result into o.
func (t *Table) MarginalizeAndMultiply(o *Table, maxProduct bool) error {
	m, err := t.Marginalize(o.vars, maxProduct)
	if err != nil {
		return err
	}
	return o.Multiply(m)
}

// Smooth replaces t with s*t + (1-s)*next. With logSmooth the mixture is
// taken over log values and renormalized. s == 0 copies next outright.
func (t *Table) Smooth(next *Table, s float64, logSmooth bool) error {
	if !t.SameScope(next) {
		return fmt.Errorf("%w: smoothing %v with %v", ErrScopeMismatch, t.vars, next.vars)
	}
	if s == 0 {
		for i := range t.vals {
			t.vals[i] = t.encode(next.decode(next.vals[i]))
		}
		return nil
	}
	if logSmooth {
		for i := range t.vals {
			a, b := t.LogValue(i), next.LogValue(i)
			l := mixLog(a, b, s)
			if t.log {
				t.vals[i] = l
			} else {
				t.vals[i] = math.Exp(l)
			}
		}
		t.Normalize()
		return nil
	}
	for i := range t.vals {
		t.vals[i] = t.encode(s*t.Value(i) + (1-s)*next.Value(i))
	}
	return nil
}

func mixLog(a, b, s float64) float64 {
	if math.IsInf(a, -1) || math.IsInf(b, -1) {
		return math.Inf(-1)
	}
	return s*a + (1-s)*b
}

func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}
