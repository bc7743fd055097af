package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestConfig_Interval(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected time.Duration
	}{
		{
			name:     "platform budget",
			config:   DefaultConfig(),
			expected: 300 * time.Second / 580,
		},
		{
			name:     "ten per second",
			config:   Config{Limit: 10, Window: time.Second},
			expected: 100 * time.Millisecond,
		},
		{
			name:     "disabled",
			config:   Config{},
			expected: 0,
		},
		{
			name:     "no window",
			config:   Config{Limit: 5},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.Interval(); got != tt.expected {
				t.Errorf("Interval() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMemoryStore_Reserve(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0)
	interval := 100 * time.Millisecond

	first, _ := store.Reserve(ctx, base, interval)
	if !first.Equal(base) {
		t.Errorf("first slot = %v, want %v", first, base)
	}

	// Immediately after: pushed one interval out.
	second, _ := store.Reserve(ctx, base, interval)
	if want := base.Add(interval); !second.Equal(want) {
		t.Errorf("second slot = %v, want %v", second, want)
	}

	third, _ := store.Reserve(ctx, base.Add(10*time.Millisecond), interval)
	if want := base.Add(2 * interval); !third.Equal(want) {
		t.Errorf("third slot = %v, want %v", third, want)
	}

	// After a long pause the slot is simply now.
	later := base.Add(time.Minute)
	fourth, _ := store.Reserve(ctx, later, interval)
	if !fourth.Equal(later) {
		t.Errorf("fourth slot = %v, want %v", fourth, later)
	}
}
