package clock

import (
	"testing"
	"time"
)

func TestFake_FiresInDueOrder(t *testing.T) {
	f := NewFake()

	var order []string

	f.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	f.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	f.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	f.Advance(5 * time.Second)

	if got := len(order); got != 3 {
		t.Fatalf("fired %d timers, want 3", got)
	}

	if order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("fire order = %v, want [a b c]", order)
	}
}

func TestFake_StopPreventsFire(t *testing.T) {
	f := NewFake()

	fired := false
	timer := f.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop() = false, want true for armed timer")
	}

	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}

	f.Advance(2 * time.Second)

	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFake_CallbackSchedulesWithinWindow(t *testing.T) {
	f := NewFake()

	var fires int

	f.AfterFunc(time.Second, func() {
		fires++
		f.AfterFunc(time.Second, func() { fires++ })
	})

	f.Advance(3 * time.Second)

	if fires != 2 {
		t.Errorf("fires = %d, want chained timer to fire in same window", fires)
	}
}

func TestFake_DoesNotFireEarly(t *testing.T) {
	f := NewFake()

	fired := false
	f.AfterFunc(2*time.Second, func() { fired = true })

	f.Advance(1999 * time.Millisecond)

	if fired {
		t.Error("timer fired before its delay elapsed")
	}

	f.Advance(time.Millisecond)

	if !fired {
		t.Error("timer did not fire at its due time")
	}
}

func TestFake_NowAdvances(t *testing.T) {
	f := NewFake()
	start := f.Now()

	f.Advance(90 * time.Second)

	if got := f.Now().Sub(start); got != 90*time.Second {
		t.Errorf("Now() advanced %v, want 90s", got)
	}
}

func TestSystem_AfterFuncFires(t *testing.T) {
	c := System()

	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("system timer did not fire")
	}
}
