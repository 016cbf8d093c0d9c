// Package engine runs a strategy over a bar series: it hosts the strategy
// callbacks, simulates fills for its orders, manages positions and stops,
// settles everything against a broker ledger and reports statistics.
package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rbi/internal/broker"
	"rbi/internal/domain"
	"rbi/internal/indicator"
	"rbi/internal/series"
)

// Strategy is implemented by every trading strategy. Init runs once before
// the first bar and registers indicators; Next runs once per bar.
type Strategy interface {
	Name() string
	Init(ctx *Context) error
	Next(ctx *Context)
}

// runNamespace scopes deterministic run ids.
var runNamespace = uuid.MustParse("6f1d0c55-4c1e-5b8a-9d0e-2b7f3c1a9e42")

// Engine runs backtests with a fixed configuration. It holds no per-run
// state, so one Engine may run many strategies, one at a time or from
// separate goroutines.
type Engine struct {
	cfg  Config
	sink Sink
	log  *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithSink sends run events to s.
func WithSink(s Sink) Option { return func(e *Engine) { e.sink = s } }

// WithLogger sets the logger handed to strategies and used for run summaries.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// New creates an Engine after validating cfg.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, sink: nopSink{}, log: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

type run struct {
	s      *series.Series
	reg    *indicator.Registry
	cols   [5]*indicator.Handle
	params Params
	br     broker.Broker
	m      *manager
	log    *slog.Logger
	t      int
}

// Run backtests strat over s with the given parameters. Input and
// registration errors return a nil Result. Invariant violations abort the
// run and return the partial Result alongside the error, which is also set
// on Result.Err.
func (e *Engine) Run(s *series.Series, strat Strategy, params Params) (*Result, error) {
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("%w: empty bar series", domain.ErrInvalidBar)
	}
	n := s.Len()
	r := &run{
		s:      s,
		reg:    indicator.NewRegistry(s),
		params: params.clone(),
		br:     broker.NewSimulator(e.cfg.Cash, e.cfg.CommissionRate, e.cfg.Margin),
		log:    e.log.With("strategy", strat.Name()),
	}
	for i, name := range priceColumns {
		h, err := r.reg.Column(name)
		if err != nil {
			return nil, err
		}
		r.cols[i] = h
	}

	ctx := &Context{r: r}
	if err := callInit(strat, ctx); err != nil {
		return nil, fmt.Errorf("init %s: %w", strat.Name(), err)
	}
	r.reg.Freeze()

	policy := Policy{}
	if d, ok := strat.(PolicyDeclarer); ok {
		policy = d.Policy()
	}
	policy = policy.merge(e.cfg)

	bars := make([]ohlc, n)
	for i := range bars {
		bars[i] = ohlc{
			open:  r.cols[0].At(i),
			high:  r.cols[1].At(i),
			low:   r.cols[2].At(i),
			close: r.cols[3].At(i),
		}
	}
	r.m = newManager(e.cfg, policy, r.br, e.sink, timesOf(s), bars)

	res := &Result{
		RunID:    runID(strat.Name(), r.params, e.cfg, policy, s),
		Strategy: strat.Name(),
		Params:   r.params,
		Config:   e.cfg,
		Policy:   policy,
	}

	err := e.loop(r, strat)
	res.Trades = r.m.trades
	res.Equity = r.m.equity
	res.Fills = r.m.fills
	res.Rejections = r.m.rejections
	res.Orders = make([]domain.Order, len(r.m.orders))
	for i, o := range r.m.orders {
		res.Orders[i] = *o
	}
	res.Stats = computeStats(s, e.cfg.Cash, res.Trades, res.Equity)
	if err != nil {
		res.Err = err
		r.log.Error("run aborted", "run", res.RunID, "error", err)
		return res, err
	}
	r.log.Info("run complete", "run", res.RunID, "bars", n,
		"trades", len(res.Trades), "rejections", len(res.Rejections),
		"equity", res.Stats.Float(StatEquityFinal))
	return res, nil
}

func (e *Engine) loop(r *run, strat Strategy) error {
	m := r.m
	last := r.s.Len() - 1
	ctx := &Context{r: r}
	for t := 0; t <= last; t++ {
		r.t = t
		if err := m.openPhase(t); err != nil {
			return err
		}
		if err := m.intrabarPhase(t); err != nil {
			return err
		}
		if err := m.closePhase(t); err != nil {
			return err
		}
		if err := callNext(strat, ctx); err != nil {
			return err
		}
	}
	return m.finish(last)
}

// callNext runs Next and turns a causal read into an error. Any other panic
// propagates.
func callNext(strat Strategy, ctx *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ce, ok := rec.(*indicator.CausalError)
			if !ok {
				panic(rec)
			}
			err = fmt.Errorf("%s at bar %d: %w", strat.Name(), ctx.Index(), ce)
		}
	}()
	strat.Next(ctx)
	return nil
}

func callInit(strat Strategy, ctx *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ce, ok := rec.(*indicator.CausalError)
			if !ok {
				panic(rec)
			}
			err = ce
		}
	}()
	return strat.Init(ctx)
}

func timesOf(s *series.Series) []time.Time {
	ts := make([]time.Time, s.Len())
	for i := range ts {
		ts[i] = s.Time(i)
	}
	return ts
}

// runID derives a stable id from everything that determines the outcome.
func runID(name string, p Params, cfg Config, policy Policy, s *series.Series) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range p.Keys() {
		fmt.Fprintf(&b, "|%s=%v", k, p[k])
	}
	fmt.Fprintf(&b, "|%+v|%+v|%s", cfg, policy, s.Fingerprint())
	return uuid.NewSHA1(runNamespace, []byte(b.String())).String()
}
