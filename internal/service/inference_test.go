package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/graph"
	"github.com/Harshitk-cp/fastinf/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockRunStore mocks the RunStore interface.
type MockRunStore struct {
	mock.Mock
}

func (m *MockRunStore) Create(ctx context.Context, r *domain.Run) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRunStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Run), args.Error(1)
}

func (m *MockRunStore) List(ctx context.Context, limit int) ([]domain.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Run), args.Error(1)
}

func (m *MockRunStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func ptr[T any](v T) *T { return &v }

func exactOptions() RunOptions {
	return RunOptions{Smoothing: ptr(0.0), Threshold: ptr(1e-12)}
}

func symmetricChain() graph.ModelSpec {
	return graph.ChainSpec(3, [][]float64{{2, 1}, {1, 2}})
}

func binaryVars(n int) []int {
	vars := make([]int, n)
	for i := range vars {
		vars[i] = i
	}
	return vars
}

// wideModel has n binary variables and a single factor over vars.
func wideModel(n int, vars []int) graph.ModelSpec {
	spec := graph.ModelSpec{Cards: make([]int, n)}
	for i := range spec.Cards {
		spec.Cards[i] = 2
	}
	values := []float64{1, 2, 3, 4}
	if len(vars) != 2 {
		values = nil
	}
	spec.Factors = []graph.FactorSpec{{Vars: vars, Values: values}}
	return spec
}

func TestInferenceService_RunChain(t *testing.T) {
	tests := []struct {
		name      string
		algorithm string
		regions   string
		want      domain.RegionKind
	}{
		{"default algorithm", "", "", ""},
		{"bp", "bp", "", ""},
		{"gbp default regions", "gbp", "", domain.RegionsBethe},
		{"gbp two-layer", "gbp", "two-layer", domain.RegionsTwoLayer},
		{"gbp cluster", "gbp", "cluster", domain.RegionsCluster},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewInferenceService(nil, zap.NewNop())
			run, err := svc.Run(context.Background(), RunRequest{
				Model:     symmetricChain(),
				Algorithm: tt.algorithm,
				Regions:   tt.regions,
				Options:   exactOptions(),
			})
			require.NoError(t, err)

			assert.True(t, run.Converged)
			assert.Equal(t, tt.want, run.Regions)
			assert.NotEqual(t, uuid.Nil, run.ID)
			assert.InDelta(t, math.Log(18), run.LogPartition, 1e-6)
			require.Len(t, run.Beliefs, 3)
			for _, b := range run.Beliefs {
				assert.InDeltaSlice(t, []float64{0.5, 0.5}, b.Values, 1e-6)
			}
			assert.Positive(t, run.Messages)
			assert.Nil(t, run.MAP)
		})
	}
}

func TestInferenceService_RunMatchesExact(t *testing.T) {
	spec := graph.ModelSpec{
		Cards: []int{2, 3, 2},
		Factors: []graph.FactorSpec{
			{Vars: []int{0, 1}, Values: []float64{1, 2, 3, 4, 1, 2}},
			{Vars: []int{1, 2}, Values: []float64{5, 1, 1, 2, 3, 3}},
			{Vars: []int{2}, Values: []float64{1, 3}},
		},
	}
	ev := domain.Evidence{2: 1}
	m, err := spec.Build(false)
	require.NoError(t, err)
	want, err := graph.Exact(m, ev)
	require.NoError(t, err)
	prior, err := graph.Exact(m, nil)
	require.NoError(t, err)

	for _, algorithm := range []string{"bp", "gbp"} {
		t.Run(algorithm, func(t *testing.T) {
			svc := NewInferenceService(nil, zap.NewNop())
			run, err := svc.Run(context.Background(), RunRequest{
				Model:     spec,
				Algorithm: algorithm,
				Evidence:  ev,
				Options:   exactOptions(),
			})
			require.NoError(t, err)
			require.Len(t, run.Beliefs, 3)
			for _, b := range run.Beliefs {
				assert.InDeltaSlice(t, want.Marginals[b.Variable], b.Values, 1e-6, "variable %d", b.Variable)
			}
			assert.InDelta(t, want.LogZ, run.LogPartition, 1e-6)
			assert.InDelta(t, want.LogZ-prior.LogZ, run.EvidenceLogProb, 1e-6)
			assert.Equal(t, ev, run.Evidence)
		})
	}
}

func TestInferenceService_RunMaxProduct(t *testing.T) {
	svc := NewInferenceService(nil, zap.NewNop())
	opts := exactOptions()
	opts.MaxProduct = ptr(true)
	run, err := svc.Run(context.Background(), RunRequest{
		Model:   graph.ChainSpec(3, [][]float64{{4, 1}, {1, 2}}),
		Options: opts,
	})
	require.NoError(t, err)
	assert.Equal(t, map[int]int{0: 0, 1: 0, 2: 0}, run.MAP)
}

func TestInferenceService_RunSkipsIsolatedVariables(t *testing.T) {
	svc := NewInferenceService(nil, zap.NewNop())
	run, err := svc.Run(context.Background(), RunRequest{
		Model: graph.ModelSpec{
			Cards:   []int{2, 2},
			Factors: []graph.FactorSpec{{Vars: []int{0}, Values: []float64{1, 3}}},
		},
		Options: exactOptions(),
	})
	require.NoError(t, err)
	require.Len(t, run.Beliefs, 1)
	assert.Equal(t, 0, run.Beliefs[0].Variable)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, run.Beliefs[0].Values, 1e-9)
}

func TestInferenceService_RunInvalid(t *testing.T) {
	tests := []struct {
		name string
		req  RunRequest
	}{
		{"unknown algorithm", RunRequest{Model: symmetricChain(), Algorithm: "mcmc"}},
		{"unknown regions", RunRequest{Model: symmetricChain(), Algorithm: "gbp", Regions: "junction"}},
		{"bad smoothing", RunRequest{Model: symmetricChain(), Options: RunOptions{Smoothing: ptr(2.0)}}},
		{"bad compare", RunRequest{Model: symmetricChain(), Options: RunOptions{Compare: ptr("median")}}},
		{"manual without order", RunRequest{Model: symmetricChain(), Options: RunOptions{Queue: ptr("manual")}}},
		{"unknown variable", RunRequest{Model: graph.ModelSpec{
			Cards:   []int{2},
			Factors: []graph.FactorSpec{{Vars: []int{0, 3}, Values: []float64{1, 1, 1, 1}}},
		}}},
		{"evidence out of range", RunRequest{Model: symmetricChain(), Evidence: domain.Evidence{1: 5}}},
		{"nested clusters", RunRequest{
			Model:     symmetricChain(),
			Algorithm: "gbp",
			Regions:   "cluster",
			Clusters:  [][]int{{0, 1}, {0, 1, 2}},
		}},
		{"smoothing one", RunRequest{Model: symmetricChain(), Options: RunOptions{Smoothing: ptr(1.0)}}},
		{"oversized cluster", RunRequest{
			Model:     wideModel(64, []int{0, 1}),
			Algorithm: "gbp",
			Regions:   "cluster",
			Clusters:  [][]int{binaryVars(64)},
		}},
		{"oversized factor", RunRequest{Model: wideModel(40, binaryVars(40))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := new(MockRunStore)
			svc := NewInferenceService(ms, zap.NewNop())
			tt.req.Persist = true
			_, err := svc.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			ms.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestInferenceService_RunPersists(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	ms := new(MockRunStore)
	var stored *domain.Run
	ms.On("Create", ctx, mock.AnythingOfType("*domain.Run")).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*domain.Run)
		}).
		Return(nil)

	svc := NewInferenceService(ms, zap.New(core))
	run, err := svc.Run(ctx, RunRequest{Model: symmetricChain(), Persist: true})
	require.NoError(t, err)

	ms.AssertExpectations(t)
	assert.Same(t, run, stored)
	entries := logs.FilterMessage("inference run finished").All()
	require.Len(t, entries, 1)
	assert.Equal(t, run.ID.String(), entries[0].ContextMap()["run_id"])
}

func TestInferenceService_RunWithoutPersist(t *testing.T) {
	ms := new(MockRunStore)
	svc := NewInferenceService(ms, zap.NewNop())
	_, err := svc.Run(context.Background(), RunRequest{Model: symmetricChain()})
	require.NoError(t, err)
	ms.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInferenceService_RunStoreError(t *testing.T) {
	ctx := context.Background()
	ms := new(MockRunStore)
	boom := errors.New("connection refused")
	ms.On("Create", ctx, mock.AnythingOfType("*domain.Run")).Return(boom)

	svc := NewInferenceService(ms, zap.NewNop())
	_, err := svc.Run(ctx, RunRequest{Model: symmetricChain(), Persist: true})
	assert.ErrorIs(t, err, boom)
}

func TestInferenceService_Defaults(t *testing.T) {
	svc := NewInferenceService(nil, nil)
	cfg := domain.DefaultInferenceConfig()
	cfg.MaxMessages = 1
	svc.SetDefaults(cfg)
	assert.Equal(t, 1, svc.Defaults().MaxMessages)

	run, err := svc.Run(context.Background(), RunRequest{Model: graph.ChainSpec(6, [][]float64{{4, 1}, {2, 3}})})
	require.NoError(t, err)
	assert.False(t, run.Converged)
	assert.Equal(t, 1, run.Messages)
}

func TestLimitsClamp(t *testing.T) {
	cfg := domain.DefaultInferenceConfig()
	cfg.MaxMessages = 500
	cfg.MaxDuration = time.Minute

	tests := []struct {
		name         string
		limits       Limits
		wantMessages int
		wantDuration time.Duration
	}{
		{"uncapped", Limits{}, 500, time.Minute},
		{"lowers both", Limits{MaxMessages: 10, MaxDuration: time.Second}, 10, time.Second},
		{"never raises", Limits{MaxMessages: 1000, MaxDuration: time.Hour}, 500, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.limits.Clamp(cfg)
			assert.Equal(t, tt.wantMessages, got.MaxMessages)
			assert.Equal(t, tt.wantDuration, got.MaxDuration)
		})
	}
}

func TestInferenceService_RunClampsRequestBudget(t *testing.T) {
	svc := NewInferenceService(nil, zap.NewNop())
	svc.SetLimits(Limits{MaxMessages: 1, MaxDuration: time.Minute})

	run, err := svc.Run(context.Background(), RunRequest{
		Model:   graph.ChainSpec(6, [][]float64{{4, 1}, {2, 3}}),
		Options: RunOptions{MaxMessages: ptr(1_000_000), MaxSeconds: ptr(1e6)},
	})
	require.NoError(t, err)
	assert.False(t, run.Converged)
	assert.Equal(t, 1, run.Messages)
}

func TestInferenceService_RunEvidenceHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, algorithm := range []string{"bp", "gbp"} {
		t.Run(algorithm, func(t *testing.T) {
			svc := NewInferenceService(nil, zap.NewNop())
			run, err := svc.Run(ctx, RunRequest{
				Model:     graph.ChainSpec(6, [][]float64{{4, 1}, {2, 3}}),
				Algorithm: algorithm,
				Evidence:  domain.Evidence{0: 1, 5: 0},
			})
			require.NoError(t, err)
			assert.False(t, run.Converged)
			// the evidence-free pass ran under the cancelled context too
			assert.Zero(t, run.Messages)
		})
	}
}

func TestInferenceService_RunEvidenceReportsBothPasses(t *testing.T) {
	svc := NewInferenceService(nil, zap.NewNop())
	svc.SetLimits(Limits{MaxMessages: 1})

	run, err := svc.Run(context.Background(), RunRequest{
		Model:    graph.ChainSpec(6, [][]float64{{4, 1}, {2, 3}}),
		Evidence: domain.Evidence{2: 0},
	})
	require.NoError(t, err)
	assert.False(t, run.Converged)
	assert.Equal(t, 2, run.Messages)
}

func TestInferenceService_GetByID(t *testing.T) {
	ctx := context.Background()
	ms := new(MockRunStore)
	known := &domain.Run{ID: uuid.New()}
	missing := uuid.New()
	ms.On("GetByID", ctx, known.ID).Return(known, nil)
	ms.On("GetByID", ctx, missing).Return(nil, store.ErrNotFound)

	svc := NewInferenceService(ms, zap.NewNop())
	got, err := svc.GetByID(ctx, known.ID)
	require.NoError(t, err)
	assert.Same(t, known, got)

	_, err = svc.GetByID(ctx, missing)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestInferenceService_ListClampsLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, DefaultListLimit},
		{"negative", -4, DefaultListLimit},
		{"in range", 7, 7},
		{"too large", 5000, MaxListLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ms := new(MockRunStore)
			ms.On("List", ctx, tt.want).Return([]domain.Run{}, nil)

			svc := NewInferenceService(ms, zap.NewNop())
			_, err := svc.List(ctx, tt.limit)
			require.NoError(t, err)
			ms.AssertExpectations(t)
		})
	}
}
