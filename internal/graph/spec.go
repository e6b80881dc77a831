package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Harshitk-cp/fastinf/internal/measure"
	"gopkg.in/yaml.v3"
)

// FactorSpec is one potential: its variables and linear values laid out
// row-major in the order Vars lists them.
type FactorSpec struct {
	Vars   []int     `json:"vars" yaml:"vars"`
	Values []float64 `json:"values" yaml:"values"`
}

// ModelSpec is the wire and file form of a model.
type ModelSpec struct {
	Cards   []int        `json:"cards" yaml:"cards"`
	Factors []FactorSpec `json:"factors" yaml:"factors"`
	// Neighbors optionally fixes the clique adjacency; by default cliques
	// sharing a variable are adjacent.
	Neighbors [][]int `json:"neighbors,omitempty" yaml:"neighbors,omitempty"`
}

// Build materializes the spec.
func (s ModelSpec) Build(logSpace bool) (*Model, error) {
	if len(s.Cards) == 0 {
		return nil, fmt.Errorf("%w: no variables", ErrInvalidModel)
	}
	pots := make([]*measure.Table, len(s.Factors))
	for i, f := range s.Factors {
		cards := make([]int, len(f.Vars))
		for k, v := range f.Vars {
			if v < 0 || v >= len(s.Cards) {
				return nil, fmt.Errorf("%w: factor %d uses unknown variable %d", ErrInvalidModel, i, v)
			}
			cards[k] = s.Cards[v]
		}
		t, err := measure.FromValues(f.Vars, cards, f.Values, logSpace)
		if err != nil {
			return nil, fmt.Errorf("factor %d: %w", i, err)
		}
		pots[i] = t
	}
	if s.Neighbors != nil {
		return NewWithNeighbors(s.Cards, pots, s.Neighbors)
	}
	return New(s.Cards, pots)
}

// LoadSpec reads a model from a .json, .yaml or .yml file.
func LoadSpec(path string) (ModelSpec, error) {
	var spec ModelSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &spec)
	case ".json":
		err = json.Unmarshal(data, &spec)
	default:
		return spec, fmt.Errorf("unsupported model file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return spec, fmt.Errorf("decode %s: %w", path, err)
	}
	return spec, nil
}

// WriteSpec stores a model in the format chosen by the file extension.
func WriteSpec(path string, spec ModelSpec) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(spec)
	case ".json":
		data, err = json.MarshalIndent(spec, "", "  ")
	default:
		return fmt.Errorf("unsupported model file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ChainSpec is a chain of n variables of cardinality len(pairwise) linked by
// the same pairwise potential.
func ChainSpec(n int, pairwise [][]float64) ModelSpec {
	card := len(pairwise)
	spec := ModelSpec{Cards: make([]int, n)}
	for i := range spec.Cards {
		spec.Cards[i] = card
	}
	flat := flatten(pairwise)
	for i := 0; i+1 < n; i++ {
		spec.Factors = append(spec.Factors, FactorSpec{Vars: []int{i, i + 1}, Values: flat})
	}
	return spec
}

// GridSpec is a rows x cols Ising-style grid of binary variables. field(v)
// is the log-potential favouring value 1 of variable v and coupling(a, b)
// the log-potential favouring a == b on the edge a-b. Unary terms are folded
// into the pairwise factors so every clique has two variables; each
// variable's field goes to the first factor that mentions it.
func GridSpec(rows, cols int, field func(v int) float64, coupling func(a, b int) float64) ModelSpec {
	n := rows * cols
	spec := ModelSpec{Cards: make([]int, n)}
	for i := range spec.Cards {
		spec.Cards[i] = 2
	}
	placed := make([]bool, n)
	add := func(a, b int) {
		j := coupling(a, b)
		var fa, fb float64
		if !placed[a] {
			fa, placed[a] = field(a), true
		}
		if !placed[b] {
			fb, placed[b] = field(b), true
		}
		vals := make([]float64, 4)
		for xa := 0; xa < 2; xa++ {
			for xb := 0; xb < 2; xb++ {
				e := float64(xa)*fa + float64(xb)*fb
				if xa == xb {
					e += j
				} else {
					e -= j
				}
				vals[xa*2+xb] = math.Exp(e)
			}
		}
		spec.Factors = append(spec.Factors, FactorSpec{Vars: []int{a, b}, Values: vals})
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := r*cols + c
			if c+1 < cols {
				add(v, v+1)
			}
			if r+1 < rows {
				add(v, v+cols)
			}
		}
	}
	return spec
}

func flatten(m [][]float64) []float64 {
	var out []float64
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}
