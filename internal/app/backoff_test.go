package app

import (
	"context"
	"testing"
	"time"
)

func TestBackoff_DoublesUpToMax(t *testing.T) {
	b := newBackoff(100*time.Millisecond, 400*time.Millisecond)

	want := []time.Duration{100, 200, 400, 400}
	for i, base := range want {
		base *= time.Millisecond
		d := b.Next()
		if d < base*8/10 || d > base*12/10 {
			t.Errorf("Next() #%d = %v, want %v ±20%%", i, d, base)
		}
	}

	b.Reset()
	if b.Current() != 100*time.Millisecond {
		t.Errorf("Current() after Reset = %v", b.Current())
	}
}

func TestBackoff_WaitHonorsContext(t *testing.T) {
	b := newBackoff(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait() = %v, want context.Canceled", err)
	}
}
