package raft

import (
	"math/rand"
	"time"
)

// timer wraps a *time.Timer with the schedule/reset/stop shape every call
// site in raft.go/snapshot.go used to build for itself out of
// randomTimeout/time.After. random timers pick a fresh duration in
// [d, 2d) on every arm, matching randomTimeout's distribution.
type timer struct {
	t      *time.Timer
	random bool
}

func randomizedDuration(d time.Duration, random bool) time.Duration {
	if d <= 0 {
		return 0
	}
	if !random {
		return d
	}
	return d + time.Duration(rand.Int63())%d
}

func newTimer(d time.Duration, random bool) *timer {
	return &timer{
		t:      time.NewTimer(randomizedDuration(d, random)),
		random: random,
	}
}

// C returns the channel the timer fires on.
func (t *timer) C() <-chan time.Time {
	return t.t.C
}

// Stop stops the timer and drains a pending fire, so a later Reset starts
// clean, per time.Timer's contract for Reset on a timer that hasn't been read.
func (t *timer) Stop() {
	if !t.t.Stop() {
		select {
		case <-t.t.C:
		default:
		}
	}
}

// Reset re-arms the timer for d, re-randomizing it if the timer is a
// random timer, after stopping and draining it via Stop.
func (t *timer) Reset(d time.Duration) {
	t.Stop()
	t.t.Reset(randomizedDuration(d, t.random))
}

// timerSet bundles the three node-level timers a running node schedules:
// the candidate's election timeout, the follower's heartbeat-missed check,
// and the periodic snapshot-worthiness check that runs on every node.
type timerSet struct {
	election  *timer
	heartbeat *timer
	snapshot  *timer
}

func newTimerSet(conf *Conf) *timerSet {
	return &timerSet{
		election:  newTimer(conf.ElectionTimeout, true),
		heartbeat: newTimer(conf.HeartBeatTimeout, true),
		snapshot:  newTimer(conf.SnapshotInterval, false),
	}
}

func (s *timerSet) stop() {
	s.election.Stop()
	s.heartbeat.Stop()
	s.snapshot.Stop()
}
