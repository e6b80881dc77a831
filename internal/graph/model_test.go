package graph

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	calls [][]int
}

func (r *recordingListener) FactorsChanged(cliques []int) {
	r.calls = append(r.calls, cliques)
}

func chain(t *testing.T) *Model {
	t.Helper()
	m, err := ChainSpec(3, [][]float64{{2, 1}, {1, 2}}).Build(false)
	require.NoError(t, err)
	return m
}

func TestNewAdjacencyBySharedVariable(t *testing.T) {
	spec := ModelSpec{
		Cards: []int{2, 2, 2, 2},
		Factors: []FactorSpec{
			{Vars: []int{0, 1}, Values: []float64{1, 1, 1, 1}},
			{Vars: []int{1, 2}, Values: []float64{1, 1, 1, 1}},
			{Vars: []int{3}, Values: []float64{1, 1}},
			{Vars: []int{1}, Values: []float64{1, 1}},
		},
	}
	m, err := spec.Build(false)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, m.Neighbors(0))
	assert.Equal(t, []int{0, 3}, m.Neighbors(1))
	assert.Empty(t, m.Neighbors(2))
	assert.Equal(t, []int{0, 1, 3}, m.CliquesOf(1))
	assert.Equal(t, []int{2, 2}, m.Cardinalities([]int{0, 3}))
}

func TestNewWithNeighborsValidates(t *testing.T) {
	pots := []*measure.Table{
		mustTable(t, []int{0, 1}),
		mustTable(t, []int{1, 2}),
	}
	tests := []struct {
		name      string
		neighbors [][]int
		ok        bool
	}{
		{"symmetric", [][]int{{1}, {0}}, true},
		{"asymmetric", [][]int{{1}, {}}, false},
		{"self loop", [][]int{{0}, {}}, false},
		{"out of range", [][]int{{5}, {0}}, false},
		{"wrong length", [][]int{{1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithNeighbors([]int{2, 2, 2}, pots, tt.neighbors)
			if tt.ok && err != nil {
				t.Errorf("NewWithNeighbors() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidModel) {
				t.Errorf("NewWithNeighbors() = %v, want ErrInvalidModel", err)
			}
		})
	}
}

func TestBuildRejectsCardinalityMismatch(t *testing.T) {
	pot, err := measure.New([]int{0}, []int{3}, false)
	require.NoError(t, err)
	_, err = New([]int{2}, []*measure.Table{pot})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestSetPotentialsNotifiesSubscribers(t *testing.T) {
	m := chain(t)
	a, b := &recordingListener{}, &recordingListener{}
	m.Subscribe(a)
	unsubscribe := m.Subscribe(b)

	p := mustTable(t, []int{1, 2})
	require.NoError(t, m.SetPotentials(map[int]*measure.Table{1: p}))
	assert.Same(t, p, m.PotentialOf(1))

	unsubscribe()
	require.NoError(t, m.SetPotentials(map[int]*measure.Table{0: mustTable(t, []int{0, 1})}))

	assert.Equal(t, [][]int{{1}, {0}}, a.calls)
	assert.Equal(t, [][]int{{1}}, b.calls)
}

func TestSetPotentialsKeepsScope(t *testing.T) {
	m := chain(t)
	err := m.SetPotentials(map[int]*measure.Table{0: mustTable(t, []int{1, 2})})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestSpecFiles(t *testing.T) {
	spec := ChainSpec(4, [][]float64{{1, 2}, {3, 4}})
	for _, name := range []string{"model.yaml", "model.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteSpec(path, spec))
			got, err := LoadSpec(path)
			require.NoError(t, err)
			assert.Equal(t, spec, got)
		})
	}

	_, err := LoadSpec(filepath.Join(t.TempDir(), "model.txt"))
	assert.Error(t, err)
}

func TestExactChain(t *testing.T) {
	m := chain(t)

	res, err := Exact(m, nil)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(18), res.LogZ, 1e-12)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, res.Marginals[1], 1e-12)

	// P(x0=0, x2=0 | x1 free) pinned by evidence x0=0
	res, err = Exact(m, domain.Evidence{0: 0})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(9), res.LogZ, 1e-12)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 1.0 / 3}, res.Marginals[1], 1e-12)
	assert.Equal(t, []int{0, 0, 0}, res.MAP)
}

func TestGridSpecShape(t *testing.T) {
	spec := GridSpec(3, 3, func(int) float64 { return 0.1 }, func(a, b int) float64 { return 0.2 })
	// 2*rows*cols - rows - cols edges
	assert.Len(t, spec.Factors, 12)
	m, err := spec.Build(true)
	require.NoError(t, err)
	assert.Equal(t, 9, m.NumVars())
	assert.True(t, m.PotentialOf(0).LogSpace())
}

func mustTable(t *testing.T, vars []int) *measure.Table {
	t.Helper()
	cards := make([]int, len(vars))
	for i := range cards {
		cards[i] = 2
	}
	tb, err := measure.New(vars, cards, false)
	require.NoError(t, err)
	return tb
}
