package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/jobqueue/backoff"
)

func TestFloor(t *testing.T) {
	tests := []struct {
		name     string
		strategy backoff.Strategy
		attempt  int
		floor    time.Duration
		want     time.Duration
	}{
		{"nil strategy", nil, 3, 57 * time.Second, 57 * time.Second},
		{"none", backoff.None{}, 1, 242 * time.Second, 242 * time.Second},
		{"strategy below floor", backoff.NewConstant(time.Second), 1, time.Minute, time.Minute},
		{"strategy above floor", backoff.NewConstant(time.Hour), 1, time.Minute, time.Hour},
		{"zero floor", backoff.NewLinear(time.Second, 0), 4, 0, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backoff.Floor(tt.strategy, tt.attempt, tt.floor); got != tt.want {
				t.Errorf("Floor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLinear(t *testing.T) {
	l := backoff.NewLinear(time.Second, 5*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{3, 3 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := l.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitter_Bounded(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 4*time.Second)
	for i := 0; i < 200; i++ {
		d := e.Delay(6)
		if d < 0 || d > 4*time.Second {
			t.Fatalf("Delay(6) = %v, want within [0, 4s]", d)
		}
	}
}

func TestDefaultStrategy(t *testing.T) {
	if got := backoff.DefaultStrategy().Delay(7); got != 0 {
		t.Errorf("DefaultStrategy().Delay(7) = %v, want 0", got)
	}
	f := backoff.Func(func(n int) time.Duration { return time.Duration(n) })
	if got := f.Delay(3); got != 3 {
		t.Errorf("Func.Delay(3) = %v, want 3", got)
	}
}
