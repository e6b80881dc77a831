package service

import (
	"fmt"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
)

// Limits caps the propagation budget a single request may ask for. Zero
// fields leave that budget uncapped.
type Limits struct {
	MaxMessages int
	MaxDuration time.Duration
}

// Clamp lowers the budgets of cfg to the limits.
func (l Limits) Clamp(cfg domain.InferenceConfig) domain.InferenceConfig {
	if l.MaxMessages > 0 && cfg.MaxMessages > l.MaxMessages {
		cfg.MaxMessages = l.MaxMessages
	}
	if l.MaxDuration > 0 && cfg.MaxDuration > l.MaxDuration {
		cfg.MaxDuration = l.MaxDuration
	}
	return cfg
}

// RunOptions overrides the configured inference defaults for one run. Nil
// fields keep the default.
type RunOptions struct {
	Queue       *string             `json:"queue,omitempty" yaml:"queue,omitempty"`
	UpdateSize  *int                `json:"update_size,omitempty" yaml:"update_size,omitempty"`
	Smoothing   *float64            `json:"smoothing,omitempty" yaml:"smoothing,omitempty"`
	LogSmooth   *bool               `json:"log_smooth,omitempty" yaml:"log_smooth,omitempty"`
	Compare     *string             `json:"compare,omitempty" yaml:"compare,omitempty"`
	Weight      *string             `json:"weight,omitempty" yaml:"weight,omitempty"`
	Threshold   *float64            `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Init        *string             `json:"init,omitempty" yaml:"init,omitempty"`
	Seed        *int64              `json:"seed,omitempty" yaml:"seed,omitempty"`
	MaxMessages *int                `json:"max_messages,omitempty" yaml:"max_messages,omitempty"`
	MaxSeconds  *float64            `json:"max_seconds,omitempty" yaml:"max_seconds,omitempty"`
	MaxProduct  *bool               `json:"max_product,omitempty" yaml:"max_product,omitempty"`
	LogSpace    *bool               `json:"log_space,omitempty" yaml:"log_space,omitempty"`
	ManualOrder []domain.MessageKey `json:"manual_order,omitempty" yaml:"manual_order,omitempty"`
}

// Apply returns cfg with the set options replacing its fields. The result is
// validated.
func (o RunOptions) Apply(cfg domain.InferenceConfig) (domain.InferenceConfig, error) {
	if o.Queue != nil {
		cfg.Queue = domain.QueueType(*o.Queue)
	}
	if o.UpdateSize != nil {
		cfg.UpdateSize = *o.UpdateSize
	}
	if o.Smoothing != nil {
		cfg.Smoothing = *o.Smoothing
	}
	if o.LogSmooth != nil {
		cfg.LogSmooth = *o.LogSmooth
	}
	if o.Compare != nil {
		c, err := measure.ParseCompare(*o.Compare)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		cfg.Compare = c
	}
	if o.Weight != nil {
		w, err := measure.ParseNorm(*o.Weight)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		cfg.Weight = w
	}
	if o.Threshold != nil {
		cfg.Threshold = *o.Threshold
	}
	if o.Init != nil {
		cfg.Init = domain.InitPolicy(*o.Init)
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}
	if o.MaxMessages != nil {
		cfg.MaxMessages = *o.MaxMessages
	}
	if o.MaxSeconds != nil {
		cfg.MaxDuration = time.Duration(*o.MaxSeconds * float64(time.Second))
	}
	if o.MaxProduct != nil {
		cfg.MaxProduct = *o.MaxProduct
	}
	if o.LogSpace != nil {
		cfg.LogSpace = *o.LogSpace
	}
	if len(o.ManualOrder) > 0 {
		cfg.ManualOrder = o.ManualOrder
	}
	return cfg, cfg.Validate()
}
