package bp

import (
	"context"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
)

type State int

const (
	StateUninitialized State = iota
	StateBuilt
	StateIterating
	StateConverged
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateExhausted:
		return "exhausted"
	}
	return "uninitialized"
}

// Stats summarizes the work done by an engine since it was built.
type Stats struct {
	State      State         `json:"state"`
	Converged  bool          `json:"converged"`
	Messages   int           `json:"messages"`
	Updates    int           `json:"updates"`
	Dirty      int           `json:"dirty"`
	Iterations int           `json:"iterations"`
	Duration   time.Duration `json:"duration"`
}

// Inference is the surface shared by the plain and the region-based engine.
type Inference interface {
	CalcProbs(ctx context.Context) (bool, error)
	Belief(clique int) (*measure.Table, error)
	BeliefOf(vars []int) (*measure.Table, error)
	MAPAssignment() (map[int]int, error)
	Partition() (float64, error)
	InitialPartition() (float64, error)
	EvidenceLogProbability() (float64, error)
	ChangeEvidence(ev domain.Evidence) error
	ResetEvidence() error
	MessageCount() int
	TotalUpdated() int
	Stats() Stats
	Close()
}

var _ Inference = (*Engine)(nil)

// MessageCount is the number of messages computed since the engine was
// built.
func (e *Engine) MessageCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalMessages
}

// TotalUpdated is the number of committed message updates, including those
// of banks replaced by evidence changes.
func (e *Engine) TotalUpdated() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pastUpdates + e.bank.TotalUpdated()
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		State:      e.state,
		Converged:  e.converged,
		Messages:   e.totalMessages,
		Updates:    e.pastUpdates + e.bank.TotalUpdated(),
		Dirty:      e.bank.TotalDirty(),
		Iterations: e.iterations,
		Duration:   e.elapsed,
	}
}
