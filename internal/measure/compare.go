package measure

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Compare selects how two tables over the same scope are judged different.
type Compare int

const (
	CompareAvg Compare = iota
	CompareMax
	CompareKL
	CompareAvgLog
	CompareMaxLog
)

var compareNames = map[Compare]string{
	CompareAvg:    "avg",
	CompareMax:    "max",
	CompareKL:     "kl",
	CompareAvgLog: "avg-log",
	CompareMaxLog: "max-log",
}

func (c Compare) String() string {
	if s, ok := compareNames[c]; ok {
		return s
	}
	return fmt.Sprintf("compare(%d)", int(c))
}

// ParseCompare accepts the names printed by Compare.String.
func ParseCompare(s string) (Compare, error) {
	for c, name := range compareNames {
		if strings.EqualFold(s, name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown compare type %q", s)
}

// Norm selects the vector norm used to weight a pending message.
type Norm int

const (
	NormL1 Norm = iota
	NormL2
	NormLInf
)

var normNames = map[Norm]string{
	NormL1:   "l1",
	NormL2:   "l2",
	NormLInf: "linf",
}

func (n Norm) String() string {
	if s, ok := normNames[n]; ok {
		return s
	}
	return fmt.Sprintf("norm(%d)", int(n))
}

// ParseNorm accepts the names printed by Norm.String.
func ParseNorm(s string) (Norm, error) {
	for n, name := range normNames {
		if strings.EqualFold(s, name) {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unknown weight norm %q", s)
}

// Distance measures how far o is from t under cmp. For CompareKL it is
// KL(t || o).
func (t *Table) Distance(o *Table, cmp Compare) (float64, error) {
	if !t.SameScope(o) {
		return 0, fmt.Errorf("%w: comparing %v with %v", ErrScopeMismatch, t.vars, o.vars)
	}
	n := float64(len(t.vals))
	switch cmp {
	case CompareMax:
		return floats.Distance(t.Values(), o.Values(), math.Inf(1)), nil
	case CompareAvg:
		return floats.Distance(t.Values(), o.Values(), 1) / n, nil
	case CompareMaxLog, CompareAvgLog:
		diffs := make([]float64, len(t.vals))
		for i := range t.vals {
			a, b := t.LogValue(i), o.LogValue(i)
			switch {
			case a == b:
				// covers both entries being zero
			case math.IsInf(a, -1) || math.IsInf(b, -1):
				diffs[i] = math.Inf(1)
			default:
				diffs[i] = math.Abs(a - b)
			}
		}
		if cmp == CompareMaxLog {
			return floats.Max(diffs), nil
		}
		return floats.Sum(diffs) / n, nil
	case CompareKL:
		kl := 0.0
		for i := range t.vals {
			p := t.Value(i)
			if p == 0 {
				continue
			}
			q := o.Value(i)
			if q == 0 {
				return math.Inf(1), nil
			}
			kl += p * (t.LogValue(i) - o.LogValue(i))
		}
		return kl, nil
	}
	return 0, fmt.Errorf("unknown compare type %d", int(cmp))
}

// Differs reports whether the distance between t and o exceeds threshold.
func (t *Table) Differs(o *Table, cmp Compare, threshold float64) (bool, error) {
	d, err := t.Distance(o, cmp)
	if err != nil {
		return false, err
	}
	return d > threshold, nil
}

// Weight is the norm of the linear difference between t and o.
func (t *Table) Weight(o *Table, norm Norm) (float64, error) {
	if !t.SameScope(o) {
		return 0, fmt.Errorf("%w: weighting %v with %v", ErrScopeMismatch, t.vars, o.vars)
	}
	var l float64
	switch norm {
	case NormL1:
		l = 1
	case NormL2:
		l = 2
	case NormLInf:
		l = math.Inf(1)
	default:
		return 0, fmt.Errorf("unknown weight norm %d", int(norm))
	}
	return floats.Distance(t.Values(), o.Values(), l), nil
}
