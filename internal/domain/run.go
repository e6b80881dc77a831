package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Algorithm string

const (
	AlgorithmBP  Algorithm = "bp"
	AlgorithmGBP Algorithm = "gbp"
)

func ValidAlgorithm(a string) bool {
	return Algorithm(a) == AlgorithmBP || Algorithm(a) == AlgorithmGBP
}

type RegionKind string

const (
	RegionsBethe    RegionKind = "bethe"
	RegionsTwoLayer RegionKind = "two-layer"
	RegionsCluster  RegionKind = "cluster"
)

func ValidRegionKind(k string) bool {
	switch RegionKind(k) {
	case RegionsBethe, RegionsTwoLayer, RegionsCluster:
		return true
	}
	return false
}

// VariableBelief is the marginal of a single variable.
type VariableBelief struct {
	Variable int       `json:"variable"`
	Values   []float64 `json:"values"`
}

// Run is the persisted outcome of one inference request.
type Run struct {
	ID              uuid.UUID        `json:"id"`
	Algorithm       Algorithm        `json:"algorithm"`
	Regions         RegionKind       `json:"regions,omitempty"`
	Converged       bool             `json:"converged"`
	LogPartition    float64          `json:"log_partition"`
	EvidenceLogProb float64          `json:"evidence_log_prob"`
	Messages        int              `json:"messages"`
	Updates         int              `json:"updates"`
	Iterations      int              `json:"iterations"`
	Duration        time.Duration    `json:"duration"`
	Evidence        Evidence         `json:"evidence,omitempty"`
	Beliefs         []VariableBelief `json:"beliefs"`
	MAP             map[int]int      `json:"map,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type RunStore interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, limit int) ([]Run, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
