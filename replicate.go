package raft

import (
	"sync"
	"time"
)

// notifyMap tracks the verifyFuture callers waiting on the next heartbeat
// round-trip to a given follower.
type notifyMap map[*verifyFuture]struct{}

// followerReplication tracks the leader's replication state for a single
// follower: the next log index to send, the last time it answered, and the
// goroutines (replicate/heartbeat) driving it.
type followerReplication struct {
	term      uint64
	nextIndex uint64
	failures  uint64

	server      *LockItem[ServerInfo]
	lastContact *LockItem[time.Time]
	notify      *LockItem[notifyMap]

	allowPipeline bool

	// stopCh 用于要求 replicate 在追平到指定索引后停止；stepDownCh 通知 leader
	// 自身可能需要下台；notifyCh 触发一次立即心跳；closeHeartbeatCh 由 replicate
	// 在退出时关闭，用于终止对应的 heartbeat goroutine。
	stopCh             chan uint64
	stepDownCh         chan struct{}
	notifyCh           chan struct{}
	closeHeartbeatCh   chan struct{}
	triggerCh          chan struct{}
	triggerDeferRespCh chan *defaultDeferResponse

	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// close stops the replicate/heartbeat goroutines for this follower. Safe to
// call more than once.
func (f *followerReplication) close() {
	f.closeOnce.Do(func() {
		close(f.shutdownCh)
	})
}

func (f *followerReplication) setLastContact() {
	f.lastContact.Set(time.Now())
}

// notifyAll wakes every verifyFuture waiting on this follower's next
// heartbeat, casting its vote according to whether the follower still
// recognizes this node as leader.
func (f *followerReplication) notifyAll(leader bool) {
	n := f.notify.Get()
	for v := range n {
		v.vote(leader)
	}
	f.notify.Set(notifyMap{})
}
