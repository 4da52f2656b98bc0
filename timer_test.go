package raft

import (
	"testing"
	"time"
)

func TestTimerFiresAndResets(t *testing.T) {
	tm := newTimer(10*time.Millisecond, false)
	defer tm.Stop()

	select {
	case <-tm.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire in time")
	}

	tm.Reset(10 * time.Millisecond)
	select {
	case <-tm.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire after reset")
	}
}

func TestTimerRandomVariesWithinBounds(t *testing.T) {
	tm := newTimer(5*time.Millisecond, true)
	defer tm.Stop()

	select {
	case <-tm.C():
	case <-time.After(time.Second):
		t.Fatal("random timer did not fire in time")
	}

	for i := 0; i < 100; i++ {
		if d := randomizedDuration(5*time.Millisecond, true); d < 5*time.Millisecond || d >= 10*time.Millisecond {
			t.Fatalf("randomized duration %v outside [5ms, 10ms)", d)
		}
	}
}

func TestTimerStopDrainsPendingFire(t *testing.T) {
	tm := newTimer(time.Millisecond, false)
	time.Sleep(5 * time.Millisecond)
	tm.Stop()
	tm.Reset(10 * time.Millisecond)

	select {
	case <-tm.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire after stop+reset")
	}
}

func TestNewTimerSet(t *testing.T) {
	conf := DefaultConfig()
	set := newTimerSet(conf)
	defer set.stop()

	if set.election == nil || set.heartbeat == nil || set.snapshot == nil {
		t.Fatalf("timer set missing a timer: %+v", set)
	}
}
