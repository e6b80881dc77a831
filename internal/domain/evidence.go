package domain

import "maps"

// Evidence maps observed variables to their values. Variables that are
// absent are unassigned.
type Evidence map[int]int

func (e Evidence) Clone() Evidence {
	if e == nil {
		return Evidence{}
	}
	return maps.Clone(e)
}

func (e Evidence) IsAssigned(v int) bool {
	_, ok := e[v]
	return ok
}

// Equal reports whether both assign exactly the same variables to the same
// values.
func (e Evidence) Equal(o Evidence) bool {
	return maps.Equal(e, o)
}

// Matches reports whether every variable of vars that e assigns is assigned
// the same value by o.
func (e Evidence) Matches(o Evidence, vars []int) bool {
	for _, v := range vars {
		x, ok := e[v]
		if !ok {
			continue
		}
		if y, ok := o[v]; !ok || x != y {
			return false
		}
	}
	return true
}

// AllAssigned reports whether every variable of vars is assigned.
func (e Evidence) AllAssigned(vars []int) bool {
	for _, v := range vars {
		if !e.IsAssigned(v) {
			return false
		}
	}
	return true
}

// AnyAssigned reports whether some variable of vars is assigned.
func (e Evidence) AnyAssigned(vars []int) bool {
	for _, v := range vars {
		if e.IsAssigned(v) {
			return true
		}
	}
	return false
}
