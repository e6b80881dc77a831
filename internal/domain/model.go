package domain

import "github.com/Harshitk-cp/fastinf/internal/measure"

// MessageKey identifies the directed message From -> To between two cliques
// (or regions).
type MessageKey struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Reverse returns the message flowing the other way along the same edge.
func (k MessageKey) Reverse() MessageKey {
	return MessageKey{From: k.To, To: k.From}
}

// FactorListener is notified when the potentials of some cliques were
// replaced.
type FactorListener interface {
	FactorsChanged(cliques []int)
}

// Model is the read-only view of a graphical model the inference engines
// consume. Potentials are owned by the model; engines duplicate them before
// applying evidence.
type Model interface {
	NumCliques() int
	NumVars() int
	VariablesOf(clique int) []int
	Neighbors(clique int) []int
	PotentialOf(clique int) *measure.Table
	Cardinality(v int) int
	Cardinalities(vars []int) []int
	// Subscribe registers l for factor updates and returns the function
	// that removes it again.
	Subscribe(l FactorListener) (unsubscribe func())
}
