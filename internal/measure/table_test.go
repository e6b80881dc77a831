package measure

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pair(t *testing.T, logSpace bool) *Table {
	t.Helper()
	tb, err := FromValues([]int{0, 1}, []int{2, 2}, []float64{2, 1, 1, 2}, logSpace)
	require.NoError(t, err)
	return tb
}

func TestFromValuesReordersScope(t *testing.T) {
	// given order (1, 0): entry (x1, x0)
	tb, err := FromValues([]int{1, 0}, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6}, false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, tb.Vars())
	assert.Equal(t, []int{3, 2}, tb.Cards())

	tests := []struct {
		x0, x1 int
		want   float64
	}{
		{0, 0, 1},
		{1, 0, 2},
		{2, 0, 3},
		{0, 1, 4},
		{2, 1, 6},
	}
	for _, tt := range tests {
		i, err := tb.Index(map[int]int{0: tt.x0, 1: tt.x1})
		require.NoError(t, err)
		if got := tb.Value(i); got != tt.want {
			t.Errorf("value(x0=%d, x1=%d) = %v, want %v", tt.x0, tt.x1, got, tt.want)
		}
	}
}

func TestNewRejectsBadScopes(t *testing.T) {
	tests := []struct {
		name  string
		vars  []int
		cards []int
	}{
		{"length mismatch", []int{0, 1}, []int{2}},
		{"zero cardinality", []int{0}, []int{0}},
		{"duplicate variable", []int{3, 3}, []int{2, 2}},
		{"size overflows", seq(64), repeat(2, 64)},
		{"too many entries", seq(25), repeat(2, 25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.vars, tt.cards, false)
			if !errors.Is(err, ErrInvalidTable) {
				t.Errorf("New(%v, %v) error = %v, want ErrInvalidTable", tt.vars, tt.cards, err)
			}
		})
	}
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestEntries(t *testing.T) {
	n, err := Entries(repeat(2, 24))
	require.NoError(t, err)
	assert.Equal(t, MaxEntries, n)

	n, err = Entries(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = Entries([]int{MaxEntries, 2})
	assert.ErrorIs(t, err, ErrInvalidTable)
	_, err = Entries(repeat(3, 64))
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestMarginalize(t *testing.T) {
	for _, logSpace := range []bool{false, true} {
		tb := pair(t, logSpace)

		sum, err := tb.Marginalize([]int{1}, false)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{3, 3}, sum.Values(), 1e-12)

		mx, err := tb.Marginalize([]int{0}, true)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{2, 2}, mx.Values(), 1e-12)

		empty, err := tb.Marginalize(nil, false)
		require.NoError(t, err)
		assert.Equal(t, 1, empty.Size())
		assert.InDelta(t, 6.0, empty.Value(0), 1e-12)
	}
}

func TestMarginalizeOutsideScope(t *testing.T) {
	tb := pair(t, false)
	_, err := tb.Marginalize([]int{7}, false)
	assert.ErrorIs(t, err, ErrScopeMismatch)
}

func TestMultiplyBroadcastsSubset(t *testing.T) {
	for _, logSpace := range []bool{false, true} {
		tb := pair(t, logSpace)
		msg, err := FromValues([]int{1}, []int{2}, []float64{10, 100}, logSpace)
		require.NoError(t, err)
		require.NoError(t, tb.Multiply(msg))
		assert.InDeltaSlice(t, []float64{20, 100, 10, 200}, tb.Values(), 1e-9)
	}
}

func TestNormalize(t *testing.T) {
	tb := pair(t, true)
	require.True(t, tb.Normalize())
	assert.InDelta(t, 1.0, tb.Sum(), 1e-12)

	zero, err := FromValues([]int{0}, []int{2}, []float64{0, 0}, false)
	require.NoError(t, err)
	assert.False(t, zero.Normalize())
	assert.Equal(t, []float64{0, 0}, zero.Values())
}

func TestPowerAndReplaceInf(t *testing.T) {
	for _, logSpace := range []bool{false, true} {
		tb, err := FromValues([]int{0}, []int{3}, []float64{0, 1, 4}, logSpace)
		require.NoError(t, err)
		tb.Power(-0.5)
		assert.True(t, math.IsInf(tb.Value(0), 1), "0^-0.5 should be +Inf before rewrite")
		tb.ReplaceInf()
		require.True(t, tb.Normalize())
		assert.InDeltaSlice(t, []float64{0, 2.0 / 3, 1.0 / 3}, tb.Values(), 1e-12)
	}
}

func TestSmooth(t *testing.T) {
	a, _ := FromValues([]int{0}, []int{2}, []float64{0.2, 0.8}, false)
	b, _ := FromValues([]int{0}, []int{2}, []float64{0.6, 0.4}, false)

	lin := a.Dup()
	require.NoError(t, lin.Smooth(b, 0.5, false))
	assert.InDeltaSlice(t, []float64{0.4, 0.6}, lin.Values(), 1e-12)

	replace := a.Dup()
	require.NoError(t, replace.Smooth(b, 0, false))
	assert.Equal(t, b.Values(), replace.Values())

	geo := a.Dup()
	require.NoError(t, geo.Smooth(b, 0.5, true))
	p, q := math.Sqrt(0.2*0.6), math.Sqrt(0.8*0.4)
	assert.InDeltaSlice(t, []float64{p / (p + q), q / (p + q)}, geo.Values(), 1e-12)
}

func TestDistance(t *testing.T) {
	a, _ := FromValues([]int{0}, []int{2}, []float64{0.5, 0.5}, false)
	b, _ := FromValues([]int{0}, []int{2}, []float64{0.25, 0.75}, false)

	tests := []struct {
		cmp  Compare
		want float64
	}{
		{CompareMax, 0.25},
		{CompareAvg, 0.25},
		{CompareMaxLog, math.Log(2)},
		{CompareAvgLog, (math.Log(2) + math.Log(1.5)) / 2},
		{CompareKL, 0.5*math.Log(2) + 0.5*math.Log(0.5/0.75)},
	}
	for _, tt := range tests {
		t.Run(tt.cmp.String(), func(t *testing.T) {
			got, err := a.Distance(b, tt.cmp)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestWeightNorms(t *testing.T) {
	a, _ := FromValues([]int{0}, []int{3}, []float64{1, 0, 0}, false)
	b, _ := FromValues([]int{0}, []int{3}, []float64{0, 0.5, 0.5}, false)

	tests := []struct {
		norm Norm
		want float64
	}{
		{NormL1, 2},
		{NormL2, math.Sqrt(1.5)},
		{NormLInf, 1},
	}
	for _, tt := range tests {
		got, err := a.Weight(b, tt.norm)
		require.NoError(t, err)
		if math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Weight(%s) = %v, want %v", tt.norm, got, tt.want)
		}
	}
}

func TestApplyEvidence(t *testing.T) {
	tb := pair(t, false)
	tb.ApplyEvidence(map[int]int{1: 0, 5: 1})
	assert.Equal(t, []float64{2, 0, 1, 0}, tb.Values())
}

func TestRandomizeIsSeeded(t *testing.T) {
	a, _ := New([]int{0, 1}, []int{2, 3}, false)
	b, _ := New([]int{0, 1}, []int{2, 3}, false)
	a.Randomize(rand.New(rand.NewSource(7)))
	b.Randomize(rand.New(rand.NewSource(7)))
	assert.True(t, a.Equal(b))
	assert.InDelta(t, 1.0, a.Sum(), 1e-12)
}

func TestOneHotAndArgmax(t *testing.T) {
	tb := pair(t, false)
	require.NoError(t, tb.Multiply(mustVector(t, []float64{1, 3})))
	idx := tb.Argmax()
	assert.Equal(t, 3, idx) // (1,1): 2*3
	assert.Equal(t, []float64{0, 0, 0, 1}, tb.OneHot(idx).Values())
}

func TestParseNames(t *testing.T) {
	c, err := ParseCompare("MAX-LOG")
	require.NoError(t, err)
	assert.Equal(t, CompareMaxLog, c)
	n, err := ParseNorm("l2")
	require.NoError(t, err)
	assert.Equal(t, NormL2, n)
	_, err = ParseNorm("l7")
	assert.Error(t, err)
}

func mustVector(t *testing.T, vals []float64) *Table {
	t.Helper()
	tb, err := FromValues([]int{1}, []int{len(vals)}, vals, false)
	require.NoError(t, err)
	return tb
}
