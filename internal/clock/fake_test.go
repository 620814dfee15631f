package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	c := Fake(epoch)
	c.Advance(5 * time.Second)
	if got, want := c.Now(), epoch.Add(5*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFuncFiresOnDeadline(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(5*time.Minute, func() { fired++ })

	c.Advance(4 * time.Minute)
	if fired != 0 {
		t.Fatal("AfterFunc fired before deadline")
	}
	c.Advance(time.Minute)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	c.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("fired = %d after second advance, want 1", fired)
	}
}

func TestFakeClockStop(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if c.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", c.PendingCount())
	}
	if !timer.Stop() {
		t.Fatal("Stop() = false on armed timer")
	}
	if timer.Stop() {
		t.Fatal("Stop() = true on stopped timer")
	}
	c.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if c.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestFakeClockStopAfterFire(t *testing.T) {
	c := Fake(epoch)
	timer := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	if timer.Stop() {
		t.Fatal("Stop() = true after fire")
	}
}

func TestFakeClockFiresInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	c.Advance(10 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("order = %v, want [1 2 3]", order)
	}
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	if timer.Stop() {
		t.Fatal("nil Timer Stop() = true")
	}
}
