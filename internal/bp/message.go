package bp

import (
	"fmt"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
	"go.uber.org/zap"
)

// bpMessage multiplies the evidence-applied factor of k.From with every
// relevant message into k.From except the one coming back from k.To, and
// marginalizes the product onto the scope of k.
func (e *Engine) bpMessage(k domain.MessageKey) (*measure.Table, error) {
	t := e.factors[k.From].Dup()
	for _, n := range e.neighbors[k.From] {
		if n == k.To {
			continue
		}
		in := domain.MessageKey{From: n, To: k.From}
		if !e.relevant[in] {
			continue
		}
		m, err := e.bank.Message(in)
		if err != nil {
			return nil, err
		}
		if err := t.Multiply(m); err != nil {
			return nil, fmt.Errorf("message %d->%d: %w", k.From, k.To, err)
		}
	}
	out, err := t.Marginalize(e.scopes.Of(k), e.cfg.MaxProduct)
	if err != nil {
		return nil, fmt.Errorf("message %d->%d: %w", k.From, k.To, err)
	}
	return out, nil
}

// cliqueBelief is the normalized product of the clique factor and all of
// its relevant incoming messages.
func (e *Engine) cliqueBelief(c int) (*measure.Table, error) {
	b := e.factors[c].Dup()
	for _, n := range e.neighbors[c] {
		in := domain.MessageKey{From: n, To: c}
		if !e.relevant[in] {
			continue
		}
		m, err := e.bank.Message(in)
		if err != nil {
			return nil, err
		}
		if err := b.Multiply(m); err != nil {
			return nil, fmt.Errorf("belief %d: %w", c, err)
		}
	}
	if !b.Normalize() {
		e.logger.Warn("belief has zero mass", zap.Int("clique", c))
	}
	return b, nil
}

func (e *Engine) computeBeliefs() error {
	beliefs := make([]*measure.Table, len(e.factors))
	for c := range beliefs {
		b, err := e.cliqueBelief(c)
		if err != nil {
			return err
		}
		beliefs[c] = b
	}
	e.beliefs = beliefs
	return nil
}
