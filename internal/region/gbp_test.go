package region

import (
	"context"
	"math"
	"testing"

	"github.com/Harshitk-cp/fastinf/internal/bp"
	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/graph"
	"github.com/Harshitk-cp/fastinf/internal/measure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func exactConfig() domain.InferenceConfig {
	cfg := domain.DefaultInferenceConfig()
	cfg.Smoothing = 0
	cfg.Threshold = 1e-12
	return cfg
}

func hubTree() graph.ModelSpec {
	return graph.ModelSpec{
		Cards: []int{2, 3, 2, 3},
		Factors: []graph.FactorSpec{
			{Vars: []int{0, 1}, Values: []float64{1, 2, 3, 4, 1, 2}},
			{Vars: []int{1, 2}, Values: []float64{5, 1, 1, 2, 3, 3}},
			{Vars: []int{1, 3}, Values: []float64{1, 2, 1, 4, 1, 1, 2, 2, 7}},
			{Vars: []int{3}, Values: []float64{1, 4, 2}},
		},
	}
}

func newEngine(t *testing.T, m domain.Model, g *Graph, cfg domain.InferenceConfig) *Engine {
	t.Helper()
	e, err := New(m, g, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func assertMatchesExact(t *testing.T, e bp.Inference, m domain.Model, ev domain.Evidence) {
	t.Helper()
	want, err := graph.Exact(m, ev)
	require.NoError(t, err)
	for v := 0; v < m.NumVars(); v++ {
		b, err := e.BeliefOf([]int{v})
		require.NoError(t, err)
		assert.InDeltaSlice(t, want.Marginals[v], b.Values(), 1e-6, "variable %d", v)
	}
	z, err := e.Partition()
	require.NoError(t, err)
	assert.InDelta(t, want.LogZ, z, 1e-6)
}

func TestGBPTreeExactness(t *testing.T) {
	bethe := func(m domain.Model) (*Graph, error) { return Bethe(m) }
	twoLayer := func(m domain.Model) (*Graph, error) { return TwoLayer(m, FactorClusters(m)) }
	cluster := func(m domain.Model) (*Graph, error) { return Cluster(m, FactorClusters(m)) }
	chain := graph.ChainSpec(5, [][]float64{{4, 1}, {2, 3}})

	tests := []struct {
		name     string
		spec     graph.ModelSpec
		build    func(domain.Model) (*Graph, error)
		logSpace bool
		evidence domain.Evidence
	}{
		{name: "bethe chain", spec: chain, build: bethe},
		{name: "bethe hub tree", spec: hubTree(), build: bethe},
		{name: "bethe hub tree with evidence", spec: hubTree(), build: bethe, evidence: domain.Evidence{0: 1, 3: 2}},
		{name: "two-layer chain", spec: chain, build: twoLayer},
		{name: "two-layer chain with evidence", spec: chain, build: twoLayer, evidence: domain.Evidence{2: 0}},
		{name: "cluster hub tree", spec: hubTree(), build: cluster},
		{name: "cluster chain in log space", spec: chain, build: cluster, logSpace: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := build(t, tt.spec)
			g, err := tt.build(m)
			require.NoError(t, err)
			cfg := exactConfig()
			cfg.LogSpace = tt.logSpace
			e := newEngine(t, m, g, cfg)
			require.NoError(t, e.ChangeEvidence(tt.evidence))

			converged, err := e.CalcProbs(context.Background())
			require.NoError(t, err)
			assert.True(t, converged)
			assertMatchesExact(t, e, m, tt.evidence)
		})
	}
}

func TestGBPGridMatchesLoopyBP(t *testing.T) {
	tests := []struct {
		name  string
		model func(*testing.T) *graph.Model
	}{
		{"weak attractive grid", weakGrid},
		{"mixed-sign grid", mixedGrid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.model(t)
			g, err := Bethe(m)
			require.NoError(t, err)
			e := newEngine(t, m, g, domain.DefaultInferenceConfig())

			converged, err := e.CalcProbs(context.Background())
			require.NoError(t, err)
			require.True(t, converged)

			plain, err := bp.New(m, domain.DefaultInferenceConfig(), zap.NewNop())
			require.NoError(t, err)
			defer plain.Close()
			_, err = plain.CalcProbs(context.Background())
			require.NoError(t, err)

			want, err := graph.Exact(m, nil)
			require.NoError(t, err)
			for v := 0; v < m.NumVars(); v++ {
				got, err := e.BeliefOf([]int{v})
				require.NoError(t, err)
				ref, err := plain.BeliefOf([]int{v})
				require.NoError(t, err)
				assert.InDeltaSlice(t, ref.Values(), got.Values(), 1e-3, "variable %d", v)
				assert.InDeltaSlice(t, want.Marginals[v], got.Values(), 0.02, "variable %d", v)
			}
			for r := 0; r < g.Len(); r++ {
				b, err := e.Belief(r)
				require.NoError(t, err)
				assert.InDelta(t, 1.0, b.Sum(), 1e-9)
			}

			z, err := e.Partition()
			require.NoError(t, err)
			zBP, err := plain.Partition()
			require.NoError(t, err)
			assert.InDelta(t, zBP, z, 1e-3)
		})
	}
}

func chainEngine(t *testing.T) *Engine {
	t.Helper()
	m := build(t, graph.ChainSpec(3, [][]float64{{2, 1}, {1, 2}}))
	g, err := Bethe(m)
	require.NoError(t, err)
	return newEngine(t, m, g, exactConfig())
}

func fixedMessage(t *testing.T, vals ...float64) func(domain.MessageKey) (*measure.Table, error) {
	t.Helper()
	return func(domain.MessageKey) (*measure.Table, error) {
		return measure.FromValues([]int{0}, []int{2}, vals, false)
	}
}

func TestMessageRule(t *testing.T) {
	// regions: {0} {1} {2} {0,1} {1,2}; region 3 is the parent of region 0
	tests := []struct {
		name     string
		key      domain.MessageKey
		powers   Powers
		counting float64
		base     []float64
		want     []float64
	}{
		{"plain down", key(3, 0), Powers{1, 0}, 1, []float64{0.9, 0.1}, []float64{0.9, 0.1}},
		{"zero-count sender", key(3, 0), Powers{1, 0}, 0, []float64{0.9, 0.1}, []float64{0.5, 0.5}},
		{"infinite entries dropped", key(3, 0), Powers{-1, 0}, 1, []float64{0, 1}, []float64{0, 1}},
		{"up with backward power", key(0, 3), Powers{1, 1}, 1, []float64{0.9, 0.1}, []float64{0.81 / 0.82, 0.01 / 0.82}},
		{"zero-count receiver", key(0, 3), Powers{1, 1}, 0, []float64{0.9, 0.1}, []float64{0.9, 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := chainEngine(t)
			e.powers[tt.key] = tt.powers
			e.graph.counting[3] = tt.counting

			got, err := e.message(tt.key, fixedMessage(t, tt.base...))
			require.NoError(t, err)
			require.True(t, got.Normalize())
			assert.InDeltaSlice(t, tt.want, got.Values(), 1e-12)
		})
	}
}

func TestUpdateCountingNumbers(t *testing.T) {
	m := weakGrid(t)
	g, err := Bethe(m)
	require.NoError(t, err)
	e := newEngine(t, m, g, domain.DefaultInferenceConfig())
	_, err = e.CalcProbs(context.Background())
	require.NoError(t, err)
	before := e.MessageCount()

	c := g.CountingNumbers()
	for r := m.NumVars(); r < g.Len(); r++ {
		c[r] = 0.5
	}
	for v := 0; v < m.NumVars(); v++ {
		c[v] = 1 - 0.5*float64(len(g.Parents(v)))
	}
	require.NoError(t, e.UpdateCountingNumbers(c))
	require.NoError(t, g.CheckCountingNumbers())
	p, ok := e.Powers(key(g.Parents(0)[0], 0))
	require.True(t, ok)
	assert.Equal(t, 0.5, p.Forward)

	_, err = e.CalcProbs(context.Background())
	require.NoError(t, err)
	assert.Greater(t, e.MessageCount(), before)
	for r := 0; r < g.Len(); r++ {
		b, err := e.Belief(r)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, b.Sum(), 1e-9)
	}
	z, err := e.Partition()
	require.NoError(t, err)
	assert.False(t, math.IsNaN(z))
}

func TestUpdateCountingNumbersKeepsOldOnError(t *testing.T) {
	e := chainEngine(t)
	prev := e.Graph().CountingNumbers()

	err := e.UpdateCountingNumbers([]float64{1, -1, 1, 0, 0})
	assert.ErrorIs(t, err, ErrPowerDenominator)
	assert.Equal(t, prev, e.Graph().CountingNumbers())
	assert.ErrorIs(t, e.UpdateCountingNumbers([]float64{1}), ErrInvalidRegion)
}

func TestRegionModelForwardsFactorUpdates(t *testing.T) {
	m := build(t, graph.ChainSpec(4, [][]float64{{4, 1}, {2, 3}}))
	g, err := Bethe(m)
	require.NoError(t, err)
	e := newEngine(t, m, g, exactConfig())
	_, err = e.CalcProbs(context.Background())
	require.NoError(t, err)

	p, err := measure.FromValues([]int{1, 2}, []int{2, 2}, []float64{1, 5, 5, 1}, false)
	require.NoError(t, err)
	require.NoError(t, m.SetPotentials(map[int]*measure.Table{1: p}))

	converged, err := e.CalcProbs(context.Background())
	require.NoError(t, err)
	assert.True(t, converged)
	assertMatchesExact(t, e, m, nil)
}

func TestNewModelValidatesOwnership(t *testing.T) {
	m := build(t, graph.ChainSpec(3, [][]float64{{2, 1}, {1, 2}}))
	tests := []struct {
		name    string
		regions []Region
		want    error
	}{
		{"owned twice", []Region{{Vars: []int{0, 1}, Factors: []int{0}}, {Vars: []int{0, 1, 2}, Factors: []int{0, 1}}}, ErrInvalidRegion},
		{"uncovered", []Region{{Vars: []int{0, 1}, Factors: []int{0}}}, ErrUncoveredFactor},
		{"too small", []Region{{Vars: []int{0, 1}, Factors: []int{0}}, {Vars: []int{1}, Factors: []int{1}}}, ErrInvalidRegion},
		{"unknown variable", []Region{{Vars: []int{5}}}, ErrInvalidRegion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			for _, r := range tt.regions {
				g.AddRegion(r.Vars, r.Factors)
			}
			_, err := NewModel(m, g)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
