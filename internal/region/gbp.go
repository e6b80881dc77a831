package region

import (
	"github.com/Harshitk-cp/fastinf/internal/bp"
	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
	"github.com/Harshitk-cp/fastinf/internal/scope"
	"go.uber.org/zap"
)

// Engine runs generalized belief propagation on a region graph. It reuses
// the propagation engine with regions as cliques, child variables as message
// scopes and a message rule that raises the plain messages to the powers
// implied by the counting numbers.
type Engine struct {
	*bp.Engine

	graph  *Graph
	model  *Model
	powers map[domain.MessageKey]Powers
	logger *zap.Logger
}

var _ bp.Inference = (*Engine)(nil)

// New builds the engine. The graph keeps the counting numbers installed on
// it, Bethe numbers when none were set.
func New(base domain.Model, g *Graph, cfg domain.InferenceConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	powers, err := g.MessagePowers()
	if err != nil {
		return nil, err
	}
	model, err := NewModel(base, g)
	if err != nil {
		return nil, err
	}

	r := &Engine{graph: g, model: model, powers: powers, logger: logger}
	eng, err := bp.New(model, cfg, logger,
		bp.WithScopes(scope.Separators(model)),
		bp.WithAffectAll(true),
		bp.WithMessageRule(r.message),
		bp.WithFreeEnergy(r.freeEnergy),
	)
	if err != nil {
		model.Close()
		return nil, err
	}
	r.Engine = eng
	logger.Debug("region graph ready",
		zap.Int("regions", g.Len()),
		zap.Int("messages", len(powers)),
	)
	return r, nil
}

// Close detaches the engine and its region model from factor updates.
func (r *Engine) Close() {
	r.Engine.Close()
	r.model.Close()
}

func (r *Engine) Graph() *Graph { return r.graph }

// Powers returns the exponents used for message k.
func (r *Engine) Powers(k domain.MessageKey) (Powers, bool) {
	p, ok := r.powers[k]
	return p, ok
}

// UpdateCountingNumbers installs new counting numbers between passes, as
// tree-reweighted schemes do, and re-derives the message powers. On error
// the previous numbers stay in place.
func (r *Engine) UpdateCountingNumbers(c []float64) error {
	prev, external := r.graph.CountingNumbers(), r.graph.external
	if err := r.graph.SetCountingNumbers(c); err != nil {
		return err
	}
	powers, err := r.graph.MessagePowers()
	if err != nil {
		r.graph.counting, r.graph.external = prev, external
		return err
	}
	r.powers = powers
	r.logger.Debug("counting numbers updated", zap.Float64s("counting", c))
	return r.Engine.Refresh()
}

// message combines the plain message along k with the plain message in
// the opposite direction, each raised to its power.
func (r *Engine) message(k domain.MessageKey, base func(domain.MessageKey) (*measure.Table, error)) (*measure.Table, error) {
	p := r.powers[k]
	down := r.graph.IsParent(k.From, k.To)

	fwd, err := base(k)
	if err != nil {
		return nil, err
	}
	fwd.Power(p.Forward)
	if p.Forward < 0 {
		fwd.ReplaceInf()
	}
	fwd.Normalize()
	if down && r.graph.counting[k.From] == 0 {
		fwd.MakeUniform()
	}

	back, err := base(k.Reverse())
	if err != nil {
		return nil, err
	}
	back.Power(p.Backward)
	if p.Backward < 0 {
		back.ReplaceInf()
	}
	back.Normalize()
	if !down && r.graph.counting[k.To] == 0 {
		back.MakeUniform()
	}

	if err := fwd.MarginalizeAndMultiply(back, r.Config().MaxProduct); err != nil {
		return nil, err
	}
	return back, nil
}
