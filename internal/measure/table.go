package measure

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
)

var (
	ErrScopeMismatch = errors.New("measure: scope mismatch")
	ErrInvalidTable  = errors.New("measure: invalid table")
	ErrZeroMass      = errors.New("measure: zero total mass")
)

// MaxEntries bounds the number of entries of a single table.
const MaxEntries = 1 << 24

// Entries is the number of entries of a table over variables with the given
// cardinalities, or ErrInvalidTable when it exceeds MaxEntries.
func Entries(cards []int) (int, error) {
	size := 1
	for _, c := range cards {
		if c <= 0 {
			return 0, fmt.Errorf("%w: cardinality %d", ErrInvalidTable, c)
		}
		if size > MaxEntries/c {
			return 0, fmt.Errorf("%w: more than %d entries over %d variables", ErrInvalidTable, MaxEntries, len(cards))
		}
		size *= c
	}
	return size, nil
}

// Table is a dense potential over an ascending set of variable indices.
// Values are stored row-major (last variable fastest), either as linear
// values or as natural logs depending on how the table was created.
type Table struct {
	vars    []int
	cards   []int
	strides []int
	vals    []float64
	log     bool
}

// New returns a table of ones over vars. The variables are sorted; cards is
// permuted along with them.
func New(vars, cards []int, logSpace bool) (*Table, error) {
	if len(vars) != len(cards) {
		return nil, fmt.Errorf("%w: %d vars, %d cards", ErrInvalidTable, len(vars), len(cards))
	}
	idx := make([]int, len(vars))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return vars[idx[a]] < vars[idx[b]] })

	sv := make([]int, len(vars))
	sc := make([]int, len(vars))
	for i, j := range idx {
		sv[i] = vars[j]
		sc[i] = cards[j]
		if sc[i] <= 0 {
			return nil, fmt.Errorf("%w: variable %d has cardinality %d", ErrInvalidTable, sv[i], sc[i])
		}
		if i > 0 && sv[i] == sv[i-1] {
			return nil, fmt.Errorf("%w: duplicate variable %d", ErrInvalidTable, sv[i])
		}
	}
	if _, err := Entries(sc); err != nil {
		return nil, err
	}
	return newSorted(sv, sc, logSpace), nil
}

func newSorted(vars, cards []int, logSpace bool) *Table {
	t := &Table{
		vars:    vars,
		cards:   cards,
		strides: make([]int, len(vars)),
		log:     logSpace,
	}
	size := 1
	for i := len(vars) - 1; i >= 0; i-- {
		t.strides[i] = size
		size *= cards[i]
	}
	t.vals = make([]float64, size)
	if !logSpace {
		for i := range t.vals {
			t.vals[i] = 1
		}
	}
	return t
}

// FromValues builds a table from linear values laid out row-major in the
// order vars is given (last variable fastest), which need not be sorted.
func FromValues(vars, cards []int, values []float64, logSpace bool) (*Table, error) {
	t, err := New(vars, cards, logSpace)
	if err != nil {
		return nil, err
	}
	if len(values) != len(t.vals) {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidTable, len(t.vals), len(values))
	}

	// stride of each given variable inside t
	dst := make([]int, len(vars))
	for k, v := range vars {
		dst[k] = t.strides[t.position(v)]
	}
	counter := make([]int, len(vars))
	j := 0
	for _, v := range values {
		if v < 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("%w: negative or NaN entry %v", ErrInvalidTable, v)
		}
		t.vals[j] = t.encode(v)
		for k := len(vars) - 1; k >= 0; k-- {
			counter[k]++
			j += dst[k]
			if counter[k] < cards[k] {
				break
			}
			j -= dst[k] * cards[k]
			counter[k] = 0
		}
	}
	return t, nil
}

func (t *Table) encode(v float64) float64 {
	if t.log {
		return math.Log(v)
	}
	return v
}

func (t *Table) decode(v float64) float64 {
	if t.log {
		return math.Exp(v)
	}
	return v
}

func (t *Table) position(v int) int {
	i, ok := slices.BinarySearch(t.vars, v)
	if !ok {
		return -1
	}
	return i
}

// Vars returns the sorted scope. The slice must not be modified.
func (t *Table) Vars() []int { return t.vars }

// Cards returns the cardinalities aligned with Vars.
func (t *Table) Cards() []int { return t.cards }

// Size is the number of entries.
func (t *Table) Size() int { return len(t.vals) }

// LogSpace reports whether values are held as logs.
func (t *Table) LogSpace() bool { return t.log }

// Has reports whether v is in the scope.
func (t *Table) Has(v int) bool { return t.position(v) >= 0 }

// Dup returns a deep copy.
func (t *Table) Dup() *Table {
	return &Table{
		vars:    t.vars,
		cards:   t.cards,
		strides: t.strides,
		vals:    slices.Clone(t.vals),
		log:     t.log,
	}
}

// In returns a copy held in the requested representation.
func (t *Table) In(logSpace bool) *Table {
	if t.log == logSpace {
		return t.Dup()
	}
	out := newSorted(t.vars, t.cards, logSpace)
	for i := range t.vals {
		out.vals[i] = out.encode(t.decode(t.vals[i]))
	}
	return out
}

// Ones returns a table of ones over the same scope.
func (t *Table) Ones() *Table {
	return newSorted(t.vars, t.cards, t.log)
}

// Value returns the linear value of entry i.
func (t *Table) Value(i int) float64 { return t.decode(t.vals[i]) }

// LogValue returns the log value of entry i.
func (t *Table) LogValue(i int) float64 {
	if t.log {
		return t.vals[i]
	}
	return math.Log(t.vals[i])
}

// Values returns a linear copy of all entries.
func (t *Table) Values() []float64 {
	out := make([]float64, len(t.vals))
	for i, v := range t.vals {
		out[i] = t.decode(v)
	}
	return out
}

// Assignment decodes entry i into one value per scope variable.
func (t *Table) Assignment(i int) []int {
	out := make([]int, len(t.vars))
	for k := range t.vars {
		out[k] = (i / t.strides[k]) % t.cards[k]
	}
	return out
}

// Index returns the entry for a full assignment of the scope.
func (t *Table) Index(assign map[int]int) (int, error) {
	i := 0
	for k, v := range t.vars {
		x, ok := assign[v]
		if !ok || x < 0 || x >= t.cards[k] {
			return 0, fmt.Errorf("%w: no valid value for variable %d", ErrScopeMismatch, v)
		}
		i += x * t.strides[k]
	}
	return i, nil
}

// Sum returns the total linear mass.
func (t *Table) Sum() float64 {
	if t.log {
		return math.Exp(floats.LogSumExp(t.vals))
	}
	return floats.Sum(t.vals)
}

// Equal reports bit-identical scope, representation and values.
func (t *Table) Equal(o *Table) bool {
	return t.log == o.log && slices.Equal(t.vars, o.vars) && slices.Equal(t.vals, o.vals)
}

// SameScope reports whether both tables have the same variables.
func (t *Table) SameScope(o *Table) bool {
	return slices.Equal(t.vars, o.vars)
}

// MakeUniform sets every entry to 1/Size.
func (t *Table) MakeUniform() {
	u := t.encode(1 / float64(len(t.vals)))
	for i := range t.vals {
		t.vals[i] = u
	}
}

// Randomize fills the table with uniform draws and normalizes.
func (t *Table) Randomize(r *rand.Rand) {
	for i := range t.vals {
		t.vals[i] = t.encode(r.Float64())
	}
	t.Normalize()
}

// Normalize divides by the total mass. It reports false and leaves the
// values untouched when the mass is zero or not finite.
func (t *Table) Normalize() bool {
	t.ClampNaN()
	if t.log {
		lse := floats.LogSumExp(t.vals)
		if math.IsInf(lse, 0) || math.IsNaN(lse) {
			return false
		}
		floats.AddConst(-lse, t.vals)
		return true
	}
	s := floats.Sum(t.vals)
	if s == 0 || math.IsInf(s, 0) || math.IsNaN(s) {
		return false
	}
	floats.Scale(1/s, t.vals)
	return true
}

// ClampNaN rewrites NaN entries to zero and returns how many were changed.
func (t *Table) ClampNaN() int {
	n := 0
	zero := t.encode(0)
	for i, v := range t.vals {
		if math.IsNaN(v) {
			t.vals[i] = zero
			n++
		}
	}
	return n
}

// ReplaceInf rewrites +Inf entries (in linear terms) to zero.
func (t *Table) ReplaceInf() {
	zero := t.encode(0)
	for i, v := range t.vals {
		if math.IsInf(v, 1) {
			t.vals[i] = zero
		}
	}
}

// Unzero rewrites zero entries to one.
func (t *Table) Unzero() {
	for i, v := range t.vals {
		if t.decode(v) == 0 {
			t.vals[i] = t.encode(1)
		}
	}
}

// Power raises every entry to p. 0^p for p < 0 yields +Inf, see ReplaceInf.
func (t *Table) Power(p float64) {
	if p == 1 {
		return
	}
	for i, v := range t.vals {
		if t.log {
			if p == 0 {
				t.vals[i] = 0
			} else {
				t.vals[i] = v * p
			}
			continue
		}
		t.vals[i] = math.Pow(v, p)
	}
}

// Argmax returns the index of the largest entry; ties go to the lowest.
func (t *Table) Argmax() int {
	return floats.MaxIdx(t.vals)
}

// OneHot returns a table over the same scope with 1 at entry i.
func (t *Table) OneHot(i int) *Table {
	out := newSorted(t.vars, t.cards, t.log)
	zero, one := out.encode(0), out.encode(1)
	for k := range out.vals {
		out.vals[k] = zero
	}
	out.vals[i] = one
	return out
}

// ApplyEvidence zeroes entries inconsistent with the assigned variables
// that appear in the scope.
func (t *Table) ApplyEvidence(evidence map[int]int) {
	type fixed struct{ k, x int }
	var fx []fixed
	for k, v := range t.vars {
		if x, ok := evidence[v]; ok {
			fx = append(fx, fixed{k, x})
		}
	}
	if len(fx) == 0 {
		return
	}
	zero := t.encode(0)
	for i := range t.vals {
		for _, f := range fx {
			if (i/t.strides[f.k])%t.cards[f.k] != f.x {
				t.vals[i] = zero
				break
			}
		}
	}
}
