package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNew_NilFnPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("New should panic with nil fn")
		}
	}()
	New(time.Millisecond, nil)
}

func TestTrigger_SingleCall(t *testing.T) {
	var calls atomic.Int32
	d := New(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	if !d.Pending() {
		t.Error("Expected call to be pending after Trigger")
	}

	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if d.Pending() {
		t.Error("Expected nothing pending after the call ran")
	}
}

func TestTrigger_BurstCollapses(t *testing.T) {
	var calls atomic.Int32
	var last atomic.Int32
	var value atomic.Int32

	d := New(50*time.Millisecond, func() {
		calls.Add(1)
		last.Store(value.Load())
	})

	for i := 1; i <= 5; i++ {
		value.Store(int32(i))
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if got := last.Load(); got != 5 {
		t.Errorf("callback saw value %d, want 5 (last trigger)", got)
	}
}

func TestTrigger_NoLeadingEdge(t *testing.T) {
	var calls atomic.Int32
	d := New(50*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	if got := calls.Load(); got != 0 {
		t.Errorf("calls immediately after Trigger = %d, want 0", got)
	}
	d.Stop()
}

func TestTrigger_SeparateQuietPeriods(t *testing.T) {
	var calls atomic.Int32
	d := New(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	time.Sleep(80 * time.Millisecond)
	d.Trigger()
	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestStop(t *testing.T) {
	var calls atomic.Int32
	d := New(20*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Stop()
	d.Trigger()

	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0 after Stop", got)
	}
}

func TestFlush(t *testing.T) {
	var calls atomic.Int32
	d := New(time.Hour, func() { calls.Add(1) })

	if d.Flush() {
		t.Error("Flush should report false when nothing is pending")
	}

	d.Trigger()
	if !d.Flush() {
		t.Error("Flush should report true when a call was pending")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if d.Pending() {
		t.Error("Expected nothing pending after Flush")
	}
}

func TestFunc(t *testing.T) {
	var calls atomic.Int32
	trigger := Func(20*time.Millisecond, func() { calls.Add(1) })

	trigger()
	trigger()
	trigger()

	time.Sleep(100 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}
