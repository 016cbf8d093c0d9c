// Package indicator binds named indicator series to a bar series. Each
// series is computed once, eagerly, at registration and read by position
// during the run through causally masked views.
package indicator

import (
	"fmt"
	"math"

	"rbi/internal/domain"
	"rbi/internal/series"
)

// Calc is a pure computation over the full bar series. Fn returns one array
// per output, each the same length as the series. Warmup is the number of
// leading bars whose values are undefined; the registry masks them to NaN
// whatever Fn produced.
type Calc struct {
	Name    string
	Warmup  int
	Outputs []string
	Fn      func(s *series.Series) ([][]float64, error)
}

// Handle is a registered, frozen indicator series.
type Handle struct {
	name   string
	warmup int
	values []float64
}

// Name returns the registered name.
func (h *Handle) Name() string { return h.name }

// Warmup returns the declared warm-up length.
func (h *Handle) Warmup() int { return h.warmup }

// Len returns the series length.
func (h *Handle) Len() int { return len(h.values) }

// At returns the value at bar i with no causal masking, NaN inside the
// warm-up. It is meant for the engine and for post-run analysis; strategies
// read through a View.
func (h *Handle) At(i int) float64 {
	if i < 0 || i >= len(h.values) {
		return math.NaN()
	}
	return h.values[i]
}

// View returns the causal view of h at bar t.
func (h *Handle) View(t int) View { return View{h: h, t: t} }

type regOpts struct {
	name   string
	output string
}

// Option customises a registration.
type Option func(*regOpts)

// Named overrides the Calc name.
func Named(name string) Option { return func(o *regOpts) { o.name = name } }

// Select picks one output of a multi-output Calc.
func Select(output string) Option { return func(o *regOpts) { o.output = output } }

// Registry owns the indicator series of one run.
type Registry struct {
	s       *series.Series
	handles map[string]*Handle
	columns map[string]*Handle
	order   []string
	frozen  bool
}

// NewRegistry creates an empty registry over s.
func NewRegistry(s *series.Series) *Registry {
	return &Registry{
		s:       s,
		handles: make(map[string]*Handle),
		columns: make(map[string]*Handle),
	}
}

// Freeze stops further registrations.
func (r *Registry) Freeze() { r.frozen = true }

// Register computes c and binds a single output. A multi-output Calc needs a
// Select option.
func (r *Registry) Register(c Calc, opts ...Option) (*Handle, error) {
	o := regOpts{name: c.Name}
	for _, opt := range opts {
		opt(&o)
	}
	outs, err := r.compute(c)
	if err != nil {
		return nil, err
	}

	idx := 0
	name := o.name
	if len(c.Outputs) > 1 || o.output != "" {
		idx = -1
		for i, out := range c.Outputs {
			if out == o.output {
				idx = i
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s has outputs %v, selected %q",
				domain.ErrInvalidIndicatorShape, c.Name, c.Outputs, o.output)
		}
		name = name + "." + o.output
	}
	return r.bind(name, c.Warmup, outs[idx])
}

// RegisterAll computes c and binds every output as <name>.<output>.
func (r *Registry) RegisterAll(c Calc, opts ...Option) ([]*Handle, error) {
	o := regOpts{name: c.Name}
	for _, opt := range opts {
		opt(&o)
	}
	outs, err := r.compute(c)
	if err != nil {
		return nil, err
	}
	if len(c.Outputs) <= 1 {
		h, err := r.bind(o.name, c.Warmup, outs[0])
		if err != nil {
			return nil, err
		}
		return []*Handle{h}, nil
	}
	hs := make([]*Handle, len(outs))
	for i, out := range c.Outputs {
		h, err := r.bind(o.name+"."+out, c.Warmup, outs[i])
		if err != nil {
			return nil, err
		}
		hs[i] = h
	}
	return hs, nil
}

// Column exposes a bar series column as a handle with no warm-up. Unknown
// names fail with ErrUnknownColumn.
func (r *Registry) Column(name string) (*Handle, error) {
	if h, ok := r.columns[name]; ok {
		return h, nil
	}
	col, err := r.s.Column(name)
	if err != nil {
		return nil, err
	}
	h := &Handle{name: name, values: col}
	r.columns[name] = h
	return h, nil
}

// Get looks up a registered indicator by name.
func (r *Registry) Get(name string) (*Handle, bool) {
	h, ok := r.handles[name]
	return h, ok
}

// Names lists registered indicators in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) compute(c Calc) ([][]float64, error) {
	if r.frozen {
		return nil, fmt.Errorf("indicator: registry frozen, cannot register %q outside init", c.Name)
	}
	if c.Fn == nil {
		return nil, fmt.Errorf("%w: %s has no computation", domain.ErrInvalidIndicatorShape, c.Name)
	}
	outs, err := c.Fn(r.s)
	if err != nil {
		return nil, fmt.Errorf("indicator %s: %w", c.Name, err)
	}
	want := len(c.Outputs)
	if want == 0 {
		want = 1
	}
	if len(outs) != want {
		return nil, fmt.Errorf("%w: %s produced %d outputs, want %d",
			domain.ErrInvalidIndicatorShape, c.Name, len(outs), want)
	}
	for i, out := range outs {
		if len(out) != r.s.Len() {
			return nil, fmt.Errorf("%w: %s output %d has length %d, series has %d",
				domain.ErrInvalidIndicatorShape, c.Name, i, len(out), r.s.Len())
		}
	}
	return outs, nil
}

func (r *Registry) bind(name string, warmup int, raw []float64) (*Handle, error) {
	if _, dup := r.handles[name]; dup {
		return nil, fmt.Errorf("%w: %q", domain.ErrNameCollision, name)
	}
	if warmup < 0 {
		warmup = 0
	}
	values := make([]float64, len(raw))
	copy(values, raw)
	for i := 0; i < warmup && i < len(values); i++ {
		values[i] = math.NaN()
	}
	h := &Handle{name: name, warmup: warmup, values: values}
	r.handles[name] = h
	r.order = append(r.order, name)
	return h, nil
}
