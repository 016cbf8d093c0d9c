package engine

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"rbi/internal/util"
)

func TestRiskSize(t *testing.T) {
	cases := []struct {
		e, r, p, s float64
		want       int
	}{
		{1_000_000, 0.01, 50_000, 49_000, 10},
		{1_000_000, 0.01, 49_000, 50_000, 10},
		{10_000, 0.02, 100, 97, 67},
		{10_000, 0.02, 100, 100, 0},
		{10_000, 0.00001, 100, 50, 0},
		{10_000, 0.02, math.NaN(), 50, 0},
		{-10_000, 0.02, 100, 90, 0},
	}
	for _, tc := range cases {
		if got := RiskSize(tc.e, tc.r, tc.p, tc.s); got != tc.want {
			t.Errorf("RiskSize(%v, %v, %v, %v) = %d, want %d", tc.e, tc.r, tc.p, tc.s, got, tc.want)
		}
	}
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	log := util.NewLoggerTo(&buf, "debug", "text")
	s := mkSeries(t,
		ohlcRow{100, 100, 100, 100},
		ohlcRow{100, 101, 99, 100},
		ohlcRow{100, 100, 90, 92},
	)
	strat := &scripted{next: func(ctx *Context) {
		if ctx.Index() == 0 {
			ctx.Buy(OrderSpec{Size: 1, SL: 95})
			ctx.Buy(OrderSpec{Size: -1})
		}
	}}
	mustRun(t, noCommission(), s, strat, WithSink(SlogSink(log)))
	out := buf.String()
	for _, want := range []string{"msg=OrderIssued", "msg=OrderFilled", "msg=OrderRejected", "code=InvalidSize", "msg=PositionClosed", "reason=stop"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}
