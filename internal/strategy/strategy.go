// Package strategy provides a registry of named strategy definitions and a
// backtester that runs them over bars read from a store.
package strategy

import (
	"fmt"
	"math"
	"sort"

	"rbi/internal/domain"
	"rbi/internal/engine"
)

// Reserved parameter names. They configure the run policy rather than the
// strategy logic and are accepted by every definition.
const (
	ParamMaxBarsHeld    = "max_bars_held"
	ParamCooldownLosses = "cooldown_losses"
	ParamCooldownBars   = "cooldown_bars"
	ParamMaxConcurrent  = "max_concurrent"
)

var reserved = []string{ParamMaxBarsHeld, ParamCooldownLosses, ParamCooldownBars, ParamMaxConcurrent}

// Definition describes a named strategy: its default parameters and a
// constructor returning fresh per-run state.
type Definition struct {
	Name        string
	Description string
	Defaults    engine.Params
	New         func() engine.Strategy
}

// Registry holds a named collection of strategy definitions for lookup and
// enumeration.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]Definition),
	}
}

// Register adds a definition keyed by its Name. A later registration with the
// same name replaces the earlier one.
func (r *Registry) Register(d Definition) {
	r.defs[d.Name] = d
}

// Get retrieves a definition by name. The second return value indicates
// whether it was found.
func (r *Registry) Get(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds a fresh strategy instance and its effective parameters: the
// definition's defaults overlaid with overrides. Overrides must name a
// default or a reserved parameter.
func (r *Registry) New(name string, overrides engine.Params) (engine.Strategy, engine.Params, error) {
	d, ok := r.defs[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownStrategy, name)
	}
	params := make(engine.Params, len(d.Defaults)+len(overrides))
	for k, v := range d.Defaults {
		params[k] = v
	}
	for k, v := range overrides {
		if _, ok := d.Defaults[k]; !ok && !isReserved(k) {
			return nil, nil, fmt.Errorf("%w: strategy %s has no parameter %q", domain.ErrInvalidConfig, name, k)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("%w: parameter %s = %v", domain.ErrInvalidConfig, k, v)
		}
		params[k] = v
	}
	policy, err := PolicyFromParams(params)
	if err != nil {
		return nil, nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	inst := d.New()
	if decl, ok := inst.(engine.PolicyDeclarer); ok {
		policy = overlay(decl.Policy(), policy)
	}
	return &hosted{Strategy: inst, policy: policy}, params, nil
}

// overlay returns base with every non-zero field of over applied on top.
func overlay(base, over engine.Policy) engine.Policy {
	for _, f := range []struct{ dst, src *int }{
		{&base.MaxConcurrent, &over.MaxConcurrent},
		{&base.MaxBarsHeld, &over.MaxBarsHeld},
		{&base.CooldownLosses, &over.CooldownLosses},
		{&base.CooldownBars, &over.CooldownBars},
	} {
		if *f.src != 0 {
			*f.dst = *f.src
		}
	}
	return base
}

// PolicyFromParams reads the reserved parameters into an engine.Policy.
// Values must be non-negative whole numbers.
func PolicyFromParams(p engine.Params) (engine.Policy, error) {
	var pol engine.Policy
	fields := map[string]*int{
		ParamMaxBarsHeld:    &pol.MaxBarsHeld,
		ParamCooldownLosses: &pol.CooldownLosses,
		ParamCooldownBars:   &pol.CooldownBars,
		ParamMaxConcurrent:  &pol.MaxConcurrent,
	}
	for _, k := range reserved {
		v, ok := p[k]
		if !ok {
			continue
		}
		if v < 0 || v != math.Trunc(v) {
			return engine.Policy{}, fmt.Errorf("%w: %s must be a non-negative integer, got %v", domain.ErrInvalidConfig, k, v)
		}
		*fields[k] = int(v)
	}
	return pol, nil
}

func isReserved(k string) bool {
	for _, r := range reserved {
		if r == k {
			return true
		}
	}
	return false
}

// hosted attaches the policy to a strategy instance: whatever the instance
// declares, with reserved parameters taking precedence where set.
type hosted struct {
	engine.Strategy
	policy engine.Policy
}

func (h *hosted) Policy() engine.Policy { return h.policy }
