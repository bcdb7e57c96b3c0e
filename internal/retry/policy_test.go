// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) *Policy {
	p := NewPolicyWithSeed(42)
	p.MaxAttempts = attempts
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 4 * time.Millisecond
	return p
}

func TestBackoff_ExponentialAndCapped(t *testing.T) {
	t.Parallel()

	p := NewPolicyWithSeed(1)
	p.BaseDelay = 100 * time.Millisecond
	p.MaxDelay = time.Second
	p.JitterFraction = 0

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}

	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_JitterWithinBounds(t *testing.T) {
	t.Parallel()

	p := NewPolicyWithSeed(7)
	p.BaseDelay = time.Second
	p.MaxDelay = time.Minute
	p.JitterFraction = 0.1

	for i := 0; i < 100; i++ {
		got := p.Backoff(0)
		if got < 900*time.Millisecond || got > 1100*time.Millisecond {
			t.Fatalf("Backoff(0) = %v, want within 10%% of 1s", got)
		}
	}
}

func TestBackoff_SameSeedSameSequence(t *testing.T) {
	t.Parallel()

	a := NewPolicyWithSeed(99)
	b := NewPolicyWithSeed(99)
	for i := 0; i < 5; i++ {
		if a.Backoff(i) != b.Backoff(i) {
			t.Fatalf("attempt %d: seeded policies diverged", i)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := fastPolicy(3)
	transient := errors.New("timeout")

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 1, false},
		{"transient first attempt", transient, 1, true},
		{"transient second attempt", transient, 2, true},
		{"transient last attempt", transient, 3, false},
		{"permanent", Permanent(transient), 1, false},
		{"canceled", context.Canceled, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShouldRetry(tt.err, tt.attempt); got != tt.want {
				t.Errorf("ShouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	p := fastPolicy(3)
	calls := 0
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3 and 3", attempts, calls)
	}
}

func TestDo_Exhausted(t *testing.T) {
	t.Parallel()

	p := fastPolicy(2)
	cause := errors.New("store down")
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return cause
	})

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrapped cause", err)
	}
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	t.Parallel()

	p := fastPolicy(5)
	attempts, err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		return Permanent(errors.New("bad payload"))
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !IsPermanent(err) {
		t.Errorf("IsPermanent(%v) = false, want true", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("permanent failure should not report ErrExhausted")
	}
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	p := fastPolicy(5)
	p.BaseDelay = time.Hour
	p.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	attempts, err := p.Do(ctx, func(ctx context.Context, attempt int) error {
		return errors.New("fail")
	})

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestPermanentNil(t *testing.T) {
	t.Parallel()

	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
