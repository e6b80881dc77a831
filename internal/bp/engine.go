package bp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Harshitk-cp/fastinf/internal/bank"
	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/measure"
	"github.com/Harshitk-cp/fastinf/internal/scope"
	"go.uber.org/zap"
)

var (
	ErrEvidenceOutOfRange = errors.New("bp: evidence value out of range")
	ErrNoClique           = errors.New("bp: no clique contains the variables")
	ErrNotMaxProduct      = errors.New("bp: MAP decoding needs max-product mode")
	ErrUnknownClique      = errors.New("bp: unknown clique")
)

// MessageRule computes the unnormalized value of message k. base computes
// the plain sum-product (or max-product) message of any key from the
// currently accepted messages.
type MessageRule func(k domain.MessageKey, base func(domain.MessageKey) (*measure.Table, error)) (*measure.Table, error)

// FreeEnergy returns the average energy and the entropy of the given clique
// beliefs; the log partition estimate is entropy - energy.
type FreeEnergy func(beliefs []*measure.Table) (energy, entropy float64, err error)

type Option func(*Engine)

// WithScopes replaces the spanning-forest scopes computed by scope.Resolve.
func WithScopes(s scope.Scopes) Option {
	return func(e *Engine) { e.scopes = s }
}

func WithMessageRule(r MessageRule) Option {
	return func(e *Engine) { e.rule = r }
}

func WithFreeEnergy(f FreeEnergy) Option {
	return func(e *Engine) { e.energy = f }
}

// WithAffectAll makes every commit re-examine all messages around the
// target clique, see bank.WithAffectAll.
func WithAffectAll(on bool) Option {
	return func(e *Engine) { e.affectAll = on }
}

// Engine runs asynchronous belief propagation over the cliques of a model.
// It is not safe to drive one Engine from several goroutines at once; the
// mutex only serializes factor notifications against a running pass.
type Engine struct {
	mu sync.Mutex

	model     domain.Model
	cfg       domain.InferenceConfig
	logger    *zap.Logger
	scopes    scope.Scopes
	rule      MessageRule
	energy    FreeEnergy
	affectAll bool
	rng       *rand.Rand
	neighbors [][]int

	bank     *bank.Bank
	factors  []*measure.Table
	evidence domain.Evidence
	relevant map[domain.MessageKey]bool
	inactive map[domain.MessageKey]bool

	beliefs        []*measure.Table
	partition      float64
	entropy        float64
	partitionValid bool
	initial        float64
	initialValid   bool
	factorsUpdated bool

	state         State
	converged     bool
	messages      int
	totalMessages int
	pastUpdates   int
	iterations    int
	elapsed       time.Duration

	unsubscribe func()
}

// New resolves message scopes, initializes every message and subscribes to
// factor updates of model. Call Close to unsubscribe.
func New(model domain.Model, cfg domain.InferenceConfig, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		model:    model,
		cfg:      cfg,
		logger:   logger,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		evidence: domain.Evidence{},
		inactive: make(map[domain.MessageKey]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scopes == nil {
		e.scopes = scope.Resolve(model)
	}
	if e.rule == nil {
		e.rule = func(k domain.MessageKey, base func(domain.MessageKey) (*measure.Table, error)) (*measure.Table, error) {
			return base(k)
		}
	}
	if e.energy == nil {
		e.energy = e.betheFreeEnergy
	}

	e.neighbors = make([][]int, model.NumCliques())
	for c := range e.neighbors {
		e.neighbors[c] = model.Neighbors(c)
	}
	e.factors = e.deriveFactors(e.evidence)
	e.relevant = e.relevance(e.evidence)
	if err := e.resetMessages(false); err != nil {
		return nil, err
	}
	e.state = StateBuilt
	e.unsubscribe = model.Subscribe(e)
	return e, nil
}

// Close stops listening for factor updates.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() domain.InferenceConfig { return e.cfg }

// Model returns the model the engine propagates over.
func (e *Engine) Model() domain.Model { return e.model }

// Scopes returns the variables carried by each message.
func (e *Engine) Scopes() scope.Scopes { return e.scopes }

func (e *Engine) deriveFactors(ev domain.Evidence) []*measure.Table {
	out := make([]*measure.Table, e.model.NumCliques())
	for c := range out {
		f := e.model.PotentialOf(c).In(e.cfg.LogSpace)
		f.ApplyEvidence(ev)
		out[c] = f
	}
	return out
}

func (e *Engine) relevance(ev domain.Evidence) map[domain.MessageKey]bool {
	out := make(map[domain.MessageKey]bool)
	for c, nbrs := range e.neighbors {
		for _, n := range nbrs {
			k := domain.MessageKey{From: c, To: n}
			vars := e.scopes.Of(k)
			out[k] = len(vars) > 0 && !ev.AllAssigned(vars) && !e.inactive[k]
		}
	}
	return out
}

// initOrder lists leaf cliques first, then the rest, each ascending.
func (e *Engine) initOrder() []int {
	order := make([]int, 0, len(e.neighbors))
	for c, nbrs := range e.neighbors {
		if len(nbrs) == 1 {
			order = append(order, c)
		}
	}
	for c, nbrs := range e.neighbors {
		if len(nbrs) != 1 {
			order = append(order, c)
		}
	}
	return order
}

func (e *Engine) newBank() *bank.Bank {
	return bank.New(e.cfg, e.neighbors, bank.WithAffectAll(e.affectAll))
}

func (e *Engine) newMessage(k domain.MessageKey) (*measure.Table, error) {
	vars := e.scopes.Of(k)
	t, err := measure.New(vars, e.model.Cardinalities(vars), e.cfg.LogSpace)
	if err != nil {
		return nil, fmt.Errorf("message %d->%d: %w", k.From, k.To, err)
	}
	if e.cfg.Init == domain.InitRandom {
		t.Randomize(e.rng)
	} else {
		t.MakeUniform()
	}
	return t, nil
}

// resetMessages rebuilds the bank. With useOld every existing message is
// carried over as its starting point.
func (e *Engine) resetMessages(useOld bool) error {
	old := e.bank
	b := e.newBank()
	for _, c := range e.initOrder() {
		for _, n := range e.neighbors[c] {
			k := domain.MessageKey{From: c, To: n}
			var m *measure.Table
			if useOld && old != nil && old.Has(k) {
				cur, err := old.Message(k)
				if err != nil {
					return err
				}
				m = cur.Dup()
			} else {
				fresh, err := e.newMessage(k)
				if err != nil {
					return err
				}
				if e.relevant[k] && e.evidence.AnyAssigned(e.scopes.Of(k)) {
					fresh.ApplyEvidence(e.evidence)
					fresh.Normalize()
				}
				m = fresh
			}
			if err := b.InitMessage(k, m); err != nil {
				return err
			}
		}
	}
	if old != nil {
		e.pastUpdates += old.TotalUpdated()
	}
	e.bank = b
	e.invalidate()
	return nil
}

func (e *Engine) invalidate() {
	e.beliefs = nil
	e.partitionValid = false
}

// CalcProbs propagates until no message changes by more than the threshold
// or the message, time or context budget runs out. It reports whether the
// run converged. Beliefs are cached until factors or evidence change.
func (e *Engine) CalcProbs(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calcProbs(ctx)
}

func (e *Engine) calcProbs(ctx context.Context) (bool, error) {
	if e.beliefs != nil {
		return e.converged, nil
	}
	if e.factorsUpdated {
		if err := e.resetMessages(true); err != nil {
			return false, err
		}
		e.factorsUpdated = false
	}

	start := time.Now()
	e.messages = 0
	e.converged = true
	e.state = StateIterating
	for {
		if e.exhausted(start) || ctx.Err() != nil {
			e.converged = false
			break
		}
		complete, err := e.iterate(start)
		if err != nil {
			e.state = StateExhausted
			return false, err
		}
		e.iterations++
		if !complete {
			// uncomputed messages of the batch still look unchanged to the bank
			e.converged = false
			break
		}
		if !e.bank.Update() {
			break
		}
	}
	e.elapsed += time.Since(start)
	if e.converged {
		e.state = StateConverged
	} else {
		e.state = StateExhausted
	}

	if err := e.computeBeliefs(); err != nil {
		return false, err
	}
	e.logger.Info("propagation finished",
		zap.Bool("converged", e.converged),
		zap.Int("messages", e.messages),
		zap.Int("iterations", e.iterations),
		zap.Duration("elapsed", time.Since(start)),
	)
	return e.converged, nil
}

func (e *Engine) exhausted(start time.Time) bool {
	return e.messages >= e.cfg.MaxMessages || time.Since(start) > e.cfg.MaxDuration
}

// iterate computes every relevant message of the bank's current batch. It
// reports false when the budget ran out before the batch was done.
func (e *Engine) iterate(start time.Time) (bool, error) {
	batch := e.bank.Iteration()
	for i, k := range batch {
		if !e.relevant[k] {
			continue
		}
		if e.exhausted(start) {
			e.logger.Debug("budget exhausted mid batch",
				zap.Int("position", i), zap.Int("batch", len(batch)))
			return false, nil
		}
		m, err := e.rule(k, e.bpMessage)
		if err != nil {
			return false, err
		}
		if !m.Normalize() {
			if e.cfg.FatalZeroMass {
				return false, fmt.Errorf("message %d->%d: %w", k.From, k.To, measure.ErrZeroMass)
			}
			e.logger.Warn("message has zero mass", zap.Int("from", k.From), zap.Int("to", k.To))
		}
		if err := e.bank.SetMessage(k, m); err != nil {
			return false, err
		}
		e.messages++
		e.totalMessages++
	}
	return true, nil
}

// FactorsChanged re-derives the factors of the given cliques. The next
// CalcProbs restarts from the current messages.
func (e *Engine) FactorsChanged(cliques []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range cliques {
		f := e.model.PotentialOf(c).In(e.cfg.LogSpace)
		f.ApplyEvidence(e.evidence)
		e.factors[c] = f
	}
	e.factorsUpdated = true
	e.initialValid = false
	e.invalidate()
	e.logger.Debug("factors changed", zap.Ints("cliques", cliques))
}

// Refresh drops cached beliefs and partition estimates and marks every
// message dirty again, keeping the current values as a warm start. Callers
// use it after changing what the message rule or free energy depend on.
func (e *Engine) Refresh() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialValid = false
	return e.resetMessages(true)
}

// Message returns a copy of the accepted value of k.
func (e *Engine) Message(k domain.MessageKey) (*measure.Table, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := e.bank.Message(k)
	if err != nil {
		return nil, err
	}
	return m.Dup(), nil
}

// SetMessageActive includes or excludes k from propagation.
func (e *Engine) SetMessageActive(k domain.MessageKey, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.bank.Has(k) {
		return fmt.Errorf("%w: %d->%d", bank.ErrUnknownMessage, k.From, k.To)
	}
	if active {
		delete(e.inactive, k)
	} else {
		e.inactive[k] = true
	}
	vars := e.scopes.Of(k)
	e.relevant[k] = len(vars) > 0 && !e.evidence.AllAssigned(vars) && active
	return e.resetMessages(true)
}
