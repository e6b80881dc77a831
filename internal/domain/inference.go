package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/measure"
)

type QueueType string

const (
	QueueUnweighted QueueType = "unweighted"
	QueueWeighted   QueueType = "weighted"
	QueueManual     QueueType = "manual"
)

func ValidQueueType(q string) bool {
	switch QueueType(q) {
	case QueueUnweighted, QueueWeighted, QueueManual:
		return true
	}
	return false
}

type InitPolicy string

const (
	InitUniform InitPolicy = "uniform"
	InitRandom  InitPolicy = "random"
)

func ValidInitPolicy(p string) bool {
	return InitPolicy(p) == InitUniform || InitPolicy(p) == InitRandom
}

const (
	DefaultUpdateSize  = 1
	DefaultSmoothing   = 0.5
	DefaultThreshold   = 1e-5
	DefaultMaxMessages = 10000000
	DefaultMaxDuration = 10000 * time.Second
)

var ErrInvalidConfig = errors.New("invalid inference config")

// InferenceConfig holds every knob of one propagation run. It is passed by
// value; engines never read process-wide state.
type InferenceConfig struct {
	Queue  QueueType    `json:"queue"`
	Weight measure.Norm `json:"weight"`
	// UpdateSize is the number of messages committed per Update; 0 means all.
	UpdateSize  int             `json:"update_size"`
	Smoothing   float64         `json:"smoothing"`
	LogSmooth   bool            `json:"log_smooth"`
	Compare     measure.Compare `json:"compare"`
	Threshold   float64         `json:"threshold"`
	Init        InitPolicy      `json:"init"`
	Seed        int64           `json:"seed"`
	MaxMessages int             `json:"max_messages"`
	MaxDuration time.Duration   `json:"max_duration"`
	MaxProduct  bool            `json:"max_product"`
	LogSpace    bool            `json:"log_space"`
	// ManualOrder is the visitation order for QueueManual.
	ManualOrder []MessageKey `json:"manual_order,omitempty"`
	// UnzeroCopied turns zeros of messages carried across an evidence
	// change back into ones.
	UnzeroCopied  bool `json:"unzero_copied"`
	FatalZeroMass bool `json:"fatal_zero_mass"`
}

func DefaultInferenceConfig() InferenceConfig {
	return InferenceConfig{
		Queue:       QueueWeighted,
		Weight:      measure.NormLInf,
		UpdateSize:  DefaultUpdateSize,
		Smoothing:   DefaultSmoothing,
		Compare:     measure.CompareMax,
		Threshold:   DefaultThreshold,
		Init:        InitUniform,
		MaxMessages: DefaultMaxMessages,
		MaxDuration: DefaultMaxDuration,
	}
}

func (c InferenceConfig) Validate() error {
	if !ValidQueueType(string(c.Queue)) {
		return fmt.Errorf("%w: queue type %q", ErrInvalidConfig, c.Queue)
	}
	if c.Queue == QueueManual && len(c.ManualOrder) == 0 {
		return fmt.Errorf("%w: manual queue needs an order", ErrInvalidConfig)
	}
	if !ValidInitPolicy(string(c.Init)) {
		return fmt.Errorf("%w: init policy %q", ErrInvalidConfig, c.Init)
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 || math.IsNaN(c.Smoothing) {
		return fmt.Errorf("%w: smoothing %v outside [0,1)", ErrInvalidConfig, c.Smoothing)
	}
	if c.UpdateSize < 0 {
		return fmt.Errorf("%w: update size %d", ErrInvalidConfig, c.UpdateSize)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%w: threshold %v", ErrInvalidConfig, c.Threshold)
	}
	if c.MaxMessages <= 0 || c.MaxDuration <= 0 {
		return fmt.Errorf("%w: budget must be positive", ErrInvalidConfig)
	}
	return nil
}
