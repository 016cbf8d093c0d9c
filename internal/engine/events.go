package engine

import (
	"context"
	"log/slog"
	"time"

	"rbi/internal/domain"
)

// EventKind names an engine event.
type EventKind string

const (
	EventOrderIssued    EventKind = "OrderIssued"
	EventOrderFilled    EventKind = "OrderFilled"
	EventOrderRejected  EventKind = "OrderRejected"
	EventOrderCancelled EventKind = "OrderCancelled"
	EventPositionClosed EventKind = "PositionClosed"
)

// Event is one structured observation of the run. Only the fields relevant
// to Kind are set.
type Event struct {
	Kind      EventKind
	Bar       int
	Time      time.Time
	Order     *domain.Order
	Fill      *domain.Fill
	Rejection *domain.Rejection
	Trade     *domain.ClosedTrade
}

// Sink receives engine events in order. Sinks run on the engine goroutine and
// must not block.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(e Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

type nopSink struct{}

func (nopSink) Emit(Event) {}

// Recorder keeps every event in memory.
type Recorder struct {
	Events []Event
}

// Emit appends e.
func (r *Recorder) Emit(e Event) { r.Events = append(r.Events, e) }

// Kinds returns the recorded event kinds in order.
func (r *Recorder) Kinds() []EventKind {
	out := make([]EventKind, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Kind
	}
	return out
}

type slogSink struct {
	log *slog.Logger
}

// SlogSink writes events to a structured logger: issues and fills at debug,
// rejections at warn, closed positions at info.
func SlogSink(log *slog.Logger) Sink {
	return slogSink{log: log}
}

func (s slogSink) Emit(e Event) {
	ctx := context.Background()
	switch e.Kind {
	case EventOrderIssued, EventOrderCancelled:
		s.log.LogAttrs(ctx, slog.LevelDebug, string(e.Kind),
			slog.Int("bar", e.Bar),
			slog.Int("order", e.Order.ID),
			slog.String("side", string(e.Order.Side)),
			slog.String("kind", string(e.Order.Kind)),
			slog.Float64("size", e.Order.Size))
	case EventOrderFilled:
		s.log.LogAttrs(ctx, slog.LevelDebug, string(e.Kind),
			slog.Int("bar", e.Bar),
			slog.Int("order", e.Fill.OrderID),
			slog.Int("position", e.Fill.PositionID),
			slog.String("action", string(e.Fill.Action)),
			slog.String("side", string(e.Fill.Side)),
			slog.Int("units", e.Fill.Units),
			slog.Float64("price", e.Fill.Price),
			slog.Float64("commission", e.Fill.Commission))
	case EventOrderRejected:
		s.log.LogAttrs(ctx, slog.LevelWarn, string(e.Kind),
			slog.Int("bar", e.Bar),
			slog.Int("order", e.Rejection.OrderID),
			slog.String("code", string(e.Rejection.Code)),
			slog.String("reason", e.Rejection.Reason))
	case EventPositionClosed:
		s.log.LogAttrs(ctx, slog.LevelInfo, string(e.Kind),
			slog.Int("bar", e.Bar),
			slog.Int("position", e.Trade.PositionID),
			slog.String("side", string(e.Trade.Side)),
			slog.String("reason", string(e.Trade.ExitReason)),
			slog.Float64("entry", e.Trade.EntryPrice),
			slog.Float64("exit", e.Trade.ExitPrice),
			slog.Float64("pnl", e.Trade.PnL))
	}
}
