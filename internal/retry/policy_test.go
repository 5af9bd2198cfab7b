package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDecide_FatalAbortsOnFirstAttempt(t *testing.T) {
	p := DefaultPolicy()

	for _, attempt := range []int{1, 2, 5, 100} {
		d := p.Decide(attempt, ClassFatal)
		if d.Retry {
			t.Fatalf("expected abort for fatal error at attempt %d", attempt)
		}
	}
}

func TestDecide_NeverRetriesPastMaxAttempts(t *testing.T) {
	p := DefaultPolicy()

	for attempt := 1; attempt <= 30; attempt++ {
		d := p.Decide(attempt, ClassTransient)
		if attempt > p.MaxAttempts && d.Retry {
			t.Fatalf("expected abort at attempt %d (max %d)", attempt, p.MaxAttempts)
		}
		if attempt <= p.MaxAttempts && !d.Retry {
			t.Fatalf("expected retry at attempt %d (max %d)", attempt, p.MaxAttempts)
		}
		if d.Delay < 0 || d.Delay > p.MaxDelay {
			t.Fatalf("delay %v outside [0, %v] at attempt %d", d.Delay, p.MaxDelay, attempt)
		}
	}
}

func TestRawDelay_ExponentialThenCapped(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 2 * time.Second, Backoff: 2.0, MaxDelay: 60 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second}, // 64s capped
		{10, 60 * time.Second},
	}

	for _, tc := range cases {
		if got := p.rawDelay(tc.attempt); got != tc.want {
			t.Fatalf("rawDelay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDecide_JitterStaysWithinRawDelay(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 2 * time.Second, Backoff: 2.0, MaxDelay: 60 * time.Second}

	for _, draw := range []float64{0, 0.25, 0.5, 0.999} {
		p.Jitter = func() float64 { return draw }
		for attempt := 1; attempt <= 3; attempt++ {
			raw := p.rawDelay(attempt)
			d := p.Decide(attempt, ClassTransient)
			want := time.Duration(draw * float64(raw))
			if d.Delay != want {
				t.Fatalf("attempt %d draw %v: delay %v, want %v", attempt, draw, d.Delay, want)
			}
			if d.Delay > raw {
				t.Fatalf("attempt %d: jittered delay %v exceeds raw %v", attempt, d.Delay, raw)
			}
		}
	}
}

func TestClassify_MarkersWinOverText(t *testing.T) {
	err := Fatal(fmt.Errorf("connection reset by peer"))
	if got := Classify(err); got != ClassFatal {
		t.Fatalf("expected marker to win, got %v", got)
	}
	err = Transient(fmt.Errorf("video not found"))
	if got := Classify(err); got != ClassTransient {
		t.Fatalf("expected marker to win, got %v", got)
	}
}

func TestClassify_TextHints(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{errors.New("HTTP Error 429: Too Many Requests"), ClassTransient},
		{errors.New("read tcp: connection reset"), ClassTransient},
		{errors.New("HTTP Error 503: Service Unavailable"), ClassTransient},
		{errors.New("ERROR: Video not found"), ClassFatal},
		{errors.New("ERROR: This video is private video"), ClassFatal},
		{errors.New("login required to access this page"), ClassFatal},
		{errors.New("API quota exceeded for today"), ClassFatal},
		{errors.New("something nobody has seen before"), ClassTransient},
	}

	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%q) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestClassify_UnwrapsWrappedMarkers(t *testing.T) {
	inner := Fatal(errors.New("target not found"))
	wrapped := fmt.Errorf("enumerate feed: %w", inner)
	if got := Classify(wrapped); got != ClassFatal {
		t.Fatalf("expected fatal through wrapping, got %v", got)
	}
}
