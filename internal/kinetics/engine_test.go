package kinetics

import (
	"errors"
	"math"
	"testing"

	"leaderboard-kinetics/internal/domain"
)

const eps = 1e-9

func seriesFrom(values ...float64) domain.HistorySeries {
	out := make(domain.HistorySeries, len(values))
	for i, v := range values {
		out[i] = domain.Snapshot{
			Symbol:      "AAPL",
			TimestampMs: int64(i) * 60_000,
			PctChange:   v,
			Volume:      v * 100,
		}
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		fallback float64
		want     float64
	}{
		{"finite", 1.5, 0, 1.5},
		{"nan", math.NaN(), 0, 0},
		{"pos inf", math.Inf(1), -1, -1},
		{"neg inf", math.Inf(-1), 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in, tt.fallback); got != tt.want {
				t.Errorf("Sanitize(%v, %v) = %v, want %v", tt.in, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestSlope_Degenerate(t *testing.T) {
	if got := Slope(nil, nil); got != 0 {
		t.Errorf("empty slope = %v, want 0", got)
	}
	if got := Slope([]float64{1, 1, 1}, []float64{1, 2, 3}); got != 0 {
		t.Errorf("identical xs slope = %v, want 0", got)
	}
	if got := Slope([]float64{1, 2}, []float64{1}); got != 0 {
		t.Errorf("mismatched slope = %v, want 0", got)
	}
}

func TestVelocity_ShorterThanWindow(t *testing.T) {
	e := NewEngine(AxisIndex, 0)
	s := seriesFrom(1, 2)

	if got := e.Velocity(s, domain.FieldPctChange, 3); got != 0 {
		t.Errorf("Velocity = %v, want 0", got)
	}
}

func TestVelocity_FlatSeries(t *testing.T) {
	e := NewEngine(AxisIndex, 0)
	s := seriesFrom(4, 4, 4, 4, 4)

	for w := 2; w <= 5; w++ {
		if got := e.Velocity(s, domain.FieldPctChange, w); got != 0 {
			t.Errorf("w=%d: Velocity = %v, want 0", w, got)
		}
	}
}

func TestVelocity_LinearIndex(t *testing.T) {
	e := NewEngine(AxisIndex, 0)
	s := seriesFrom(1, 3, 5, 7, 9)

	if got := e.Velocity(s, domain.FieldPctChange, 3); !almostEqual(got, 2) {
		t.Errorf("Velocity = %v, want 2", got)
	}
	if got := e.Velocity(s, domain.FieldVolume, 5); !almostEqual(got, 200) {
		t.Errorf("volume Velocity = %v, want 200", got)
	}
}

func TestVelocity_IndexAndTimeDiffer(t *testing.T) {
	s := domain.HistorySeries{
		{Symbol: "AAPL", TimestampMs: 0, PctChange: 0.12, Volume: 1000},
		{Symbol: "AAPL", TimestampMs: 600_000, PctChange: 0.20, Volume: 1400},
	}

	byIndex := NewEngine(AxisIndex, 0).Velocity(s, domain.FieldPctChange, 2)
	byTime := NewEngine(AxisTime, 0).Velocity(s, domain.FieldPctChange, 2)

	if !almostEqual(byIndex, 0.08) {
		t.Errorf("index velocity = %v, want 0.08", byIndex)
	}
	// 600 seconds between points
	if !almostEqual(byTime, 0.08/600) {
		t.Errorf("time velocity = %v, want %v", byTime, 0.08/600)
	}
}

func TestVelocity_TimeAxisDuplicateTimestamps(t *testing.T) {
	s := domain.HistorySeries{
		{Symbol: "X", TimestampMs: 1000, PctChange: 1},
		{Symbol: "X", TimestampMs: 1000, PctChange: 5},
	}

	if got := NewEngine(AxisTime, 0).Velocity(s, domain.FieldPctChange, 2); got != 0 {
		t.Errorf("Velocity = %v, want 0", got)
	}
}

func TestAcceleration_LinearSeriesIsZero(t *testing.T) {
	e := NewEngine(AxisIndex, 0)
	s := seriesFrom(2, 5, 8, 11, 14, 17, 20)

	for w := 2; w <= 6; w++ {
		if got := e.Acceleration(s, domain.FieldPctChange, w); !almostEqual(got, 0) {
			t.Errorf("w=%d: Acceleration = %v, want 0", w, got)
		}
	}
}

func TestAcceleration_Quadratic(t *testing.T) {
	e := NewEngine(AxisIndex, 0)
	s := seriesFrom(0, 1, 4, 9, 16)

	// slope over (9,16) is 7, over (4,9) is 5
	if got := e.Acceleration(s, domain.FieldPctChange, 2); !almostEqual(got, 2) {
		t.Errorf("Acceleration = %v, want 2", got)
	}
}

func TestAcceleration_RequiresWindowPlusOne(t *testing.T) {
	e := NewEngine(AxisIndex, 0)
	s := seriesFrom(0, 1, 4)

	if got := e.Acceleration(s, domain.FieldPctChange, 3); got != 0 {
		t.Errorf("Acceleration = %v, want 0", got)
	}
}

func TestNonFiniteInWindowUsesFallback(t *testing.T) {
	e := NewEngine(AxisIndex, -1)
	s := seriesFrom(1, 2, math.NaN(), 4, 5)

	if got := e.Velocity(s, domain.FieldPctChange, 3); got != -1 {
		t.Errorf("Velocity = %v, want fallback -1", got)
	}
	if got := e.Acceleration(s, domain.FieldPctChange, 2); got != -1 {
		t.Errorf("Acceleration = %v, want fallback -1", got)
	}
	// NaN outside of the trailing window does not matter
	if got := e.Velocity(s, domain.FieldPctChange, 2); !almostEqual(got, 1) {
		t.Errorf("Velocity = %v, want 1", got)
	}
}

func TestCompute_WarmingUp(t *testing.T) {
	e := NewEngine(AxisIndex, 0)
	w := Windows{Velocity: 3, Acceleration: 3}

	if w.MinSamples() != 4 {
		t.Fatalf("MinSamples = %d, want 4", w.MinSamples())
	}

	k, warming := e.Compute(seriesFrom(1, 2, 3), w)
	if !warming {
		t.Fatal("expected warming up")
	}
	if k != (domain.Kinetics{}) {
		t.Errorf("warming kinetics = %+v, want zero", k)
	}

	k, warming = e.Compute(seriesFrom(1, 2, 3, 4), w)
	if warming {
		t.Fatal("expected warm series")
	}
	if !almostEqual(k.PctVelocity, 1) || !almostEqual(k.VolVelocity, 100) {
		t.Errorf("velocities = %+v", k)
	}
	if !almostEqual(k.PctAcceleration, 0) {
		t.Errorf("PctAcceleration = %v, want 0", k.PctAcceleration)
	}
}

func TestParseAxis(t *testing.T) {
	if a, err := ParseAxis(""); err != nil || a != AxisIndex {
		t.Errorf("ParseAxis(\"\") = %v, %v", a, err)
	}
	if a, err := ParseAxis("TIME"); err != nil || a != AxisTime {
		t.Errorf("ParseAxis(TIME) = %v, %v", a, err)
	}
	if _, err := ParseAxis("log"); !errors.Is(err, ErrUnknownAxis) {
		t.Errorf("expected ErrUnknownAxis, got %v", err)
	}
}
