package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/bp"
	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/graph"
	"github.com/Harshitk-cp/fastinf/internal/region"
	"github.com/Harshitk-cp/fastinf/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var (
	ErrInvalidRequest = errors.New("invalid inference request")
	ErrRunNotFound    = errors.New("run not found")
)

// RunRequest describes one inference job.
type RunRequest struct {
	Model     graph.ModelSpec `json:"model" yaml:"model"`
	Algorithm string          `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	// Regions picks the region graph for gbp; bethe by default.
	Regions string `json:"regions,omitempty" yaml:"regions,omitempty"`
	// Clusters are the outer regions of two-layer and cluster graphs. By
	// default every maximal factor scope becomes a cluster.
	Clusters [][]int         `json:"clusters,omitempty" yaml:"clusters,omitempty"`
	Evidence domain.Evidence `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Options  RunOptions      `json:"options" yaml:"options"`
	// Persist stores the run when the service has a store.
	Persist bool `json:"persist" yaml:"persist"`
}

type InferenceService struct {
	store    domain.RunStore
	defaults domain.InferenceConfig
	limits   Limits
	logger   *zap.Logger
}

// NewInferenceService creates the service. s may be nil, in which case runs
// are never persisted.
func NewInferenceService(s domain.RunStore, logger *zap.Logger) *InferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InferenceService{
		store:    s,
		defaults: domain.DefaultInferenceConfig(),
		logger:   logger,
	}
}

// SetDefaults replaces the configuration that request options start from.
func (s *InferenceService) SetDefaults(cfg domain.InferenceConfig) {
	s.defaults = cfg
}

func (s *InferenceService) Defaults() domain.InferenceConfig { return s.defaults }

// SetLimits caps the budgets of every later run, whatever the request asks.
func (s *InferenceService) SetLimits(l Limits) {
	s.limits = l
}

// Run builds the model, propagates and collects single-variable beliefs.
// Non-convergence is reported on the run, not as an error.
func (s *InferenceService) Run(ctx context.Context, req RunRequest) (*domain.Run, error) {
	algorithm := domain.Algorithm(req.Algorithm)
	if algorithm == "" {
		algorithm = domain.AlgorithmBP
	}
	if !domain.ValidAlgorithm(string(algorithm)) {
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidRequest, req.Algorithm)
	}
	var regions domain.RegionKind
	if algorithm == domain.AlgorithmGBP {
		regions = domain.RegionKind(req.Regions)
		if regions == "" {
			regions = domain.RegionsBethe
		}
		if !domain.ValidRegionKind(string(regions)) {
			return nil, fmt.Errorf("%w: unknown region graph %q", ErrInvalidRequest, req.Regions)
		}
	}

	cfg, err := req.Options.Apply(s.defaults)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	cfg = s.limits.Clamp(cfg)
	model, err := req.Model.Build(false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if err := bp.ValidateEvidence(model, req.Evidence); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	eng, err := s.newEngine(model, algorithm, regions, req.Clusters, cfg)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	converged := true
	if len(req.Evidence) > 0 {
		// The evidence-free partition is computed under ctx here so that
		// EvidenceLogProbability reads it back instead of propagating again.
		prior, err := eng.CalcProbs(ctx)
		if err != nil {
			return nil, fmt.Errorf("propagate without evidence: %w", err)
		}
		if _, err := eng.Partition(); err != nil {
			return nil, fmt.Errorf("partition without evidence: %w", err)
		}
		converged = prior
		if err := eng.ChangeEvidence(req.Evidence); err != nil {
			return nil, err
		}
	}

	posterior, err := eng.CalcProbs(ctx)
	if err != nil {
		return nil, fmt.Errorf("propagate: %w", err)
	}
	converged = converged && posterior

	run := &domain.Run{
		ID:        uuid.New(),
		Algorithm: algorithm,
		Regions:   regions,
		Converged: converged,
		Evidence:  req.Evidence.Clone(),
		CreatedAt: time.Now().UTC(),
	}
	if err := collect(eng, model, cfg, run); err != nil {
		return nil, err
	}

	s.logger.Info("inference run finished",
		zap.String("run_id", run.ID.String()),
		zap.String("algorithm", string(algorithm)),
		zap.String("regions", string(regions)),
		zap.Bool("converged", converged),
		zap.Int("messages", run.Messages),
		zap.Float64("log_partition", run.LogPartition),
		zap.Duration("duration", run.Duration),
	)

	if req.Persist && s.store != nil {
		if err := s.store.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("store run: %w", err)
		}
	}
	return run, nil
}

func (s *InferenceService) newEngine(m *graph.Model, algorithm domain.Algorithm, kind domain.RegionKind, clusters [][]int, cfg domain.InferenceConfig) (bp.Inference, error) {
	if algorithm == domain.AlgorithmBP {
		eng, err := bp.New(m, cfg, s.logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return eng, nil
	}

	if len(clusters) == 0 {
		clusters = region.FactorClusters(m)
	}
	var (
		g   *region.Graph
		err error
	)
	switch kind {
	case domain.RegionsBethe:
		g, err = region.Bethe(m)
	case domain.RegionsTwoLayer:
		g, err = region.TwoLayer(m, clusters)
	case domain.RegionsCluster:
		g, err = region.Cluster(m, clusters)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	eng, err := region.New(m, g, cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return eng, nil
}

func collect(eng bp.Inference, m *graph.Model, cfg domain.InferenceConfig, run *domain.Run) error {
	for v := 0; v < m.NumVars(); v++ {
		b, err := eng.BeliefOf([]int{v})
		if errors.Is(err, bp.ErrNoClique) {
			// variables without factors carry no belief
			continue
		}
		if err != nil {
			return fmt.Errorf("belief of %d: %w", v, err)
		}
		run.Beliefs = append(run.Beliefs, domain.VariableBelief{Variable: v, Values: b.Values()})
	}

	z, err := eng.Partition()
	if err != nil {
		return fmt.Errorf("partition: %w", err)
	}
	run.LogPartition = z
	if len(run.Evidence) > 0 {
		p, err := eng.EvidenceLogProbability()
		if err != nil {
			return fmt.Errorf("evidence probability: %w", err)
		}
		run.EvidenceLogProb = p
	}
	if cfg.MaxProduct {
		assign, err := eng.MAPAssignment()
		if err != nil {
			return fmt.Errorf("map assignment: %w", err)
		}
		run.MAP = assign
	}

	st := eng.Stats()
	run.Messages = st.Messages
	run.Updates = st.Updates
	run.Iterations = st.Iterations
	run.Duration = st.Duration
	return nil
}

func (s *InferenceService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return r, nil
}

// List returns the most recent runs; limit is clamped to [1, MaxListLimit]
// with DefaultListLimit for non-positive values.
func (s *InferenceService) List(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.store.List(ctx, limit)
}
