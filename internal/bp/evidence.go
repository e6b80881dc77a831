package bp

import (
	"fmt"

	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
	"go.uber.org/zap"
)

// Evidence returns a copy of the current evidence.
func (e *Engine) Evidence() domain.Evidence {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evidence.Clone()
}

// ChangeEvidence conditions the engine on ev. Messages whose variables are
// assigned identically before and after keep their values; the others are
// initialized again. Nothing changes when ev holds an out-of-range value.
func (e *Engine) ChangeEvidence(ev domain.Evidence) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.changeEvidence(ev)
}

// ResetEvidence removes all evidence.
func (e *Engine) ResetEvidence() error {
	return e.ChangeEvidence(domain.Evidence{})
}

// ValidateEvidence reports ErrEvidenceOutOfRange when ev names a variable or
// value that m does not have.
func ValidateEvidence(m domain.Model, ev domain.Evidence) error {
	for v, x := range ev {
		if v < 0 || v >= m.NumVars() || x < 0 || x >= m.Cardinality(v) {
			return fmt.Errorf("%w: variable %d = %d", ErrEvidenceOutOfRange, v, x)
		}
	}
	return nil
}

func (e *Engine) changeEvidence(ev domain.Evidence) error {
	if err := ValidateEvidence(e.model, ev); err != nil {
		return err
	}
	if e.evidence.Equal(ev) {
		return nil
	}

	next := ev.Clone()
	relevant := e.relevance(next)
	old := e.bank
	b := e.newBank()
	kept := 0
	for _, k := range old.Keys() {
		vars := e.scopes.Of(k)
		var m *measure.Table
		if e.evidence.Matches(next, vars) {
			cur, err := old.Message(k)
			if err != nil {
				return err
			}
			m = cur.Dup()
			if e.cfg.UnzeroCopied {
				m.Unzero()
			}
			kept++
		} else {
			fresh, err := e.newMessage(k)
			if err != nil {
				return err
			}
			m = fresh
		}
		if relevant[k] && next.AnyAssigned(vars) {
			m.ApplyEvidence(next)
			m.Normalize()
		}
		if err := b.InitMessage(k, m); err != nil {
			return err
		}
	}

	e.pastUpdates += old.TotalUpdated()
	e.bank = b
	e.evidence = next
	e.relevant = relevant
	e.factors = e.deriveFactors(next)
	e.invalidate()
	e.logger.Debug("evidence changed",
		zap.Int("assigned", len(next)),
		zap.Int("kept_messages", kept),
		zap.Int("messages", b.Len()),
	)
	return nil
}
