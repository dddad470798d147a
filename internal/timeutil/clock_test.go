package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	before := time.Now()
	now := RealClock{}.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
	if now.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", now.Location())
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2015, 5, 1, 0, 0, 30, 0, time.UTC)
	c := NewMockClock(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(90 * time.Second)
	if got, want := c.Now(), start.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("after Advance Now() = %v, want %v", got, want)
	}

	later := time.Date(2015, 5, 2, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("after Set Now() = %v, want %v", got, later)
	}
}

func TestMockClockConcurrent(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Advance(time.Millisecond)
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		_ = c.Now()
	}
	<-done
	if got := c.Now(); !got.Equal(time.Unix(0, 0).Add(100 * time.Millisecond)) {
		t.Errorf("Now() = %v after 100 advances", got)
	}
}
