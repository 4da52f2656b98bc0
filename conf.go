package raft

import (
	"fmt"
	"net"
	"time"
)

type Conf struct {
	LocalAddr         net.Addr
	LocalID           ServerID
	HeartBeatCycle    time.Duration
	MemberList        []Member
	HeartBeatTimeout  time.Duration
	SnapshotInterval  time.Duration
	ElectionTimeout   time.Duration
	CommitTimeout     time.Duration
	LeaderShipTimeout time.Duration // 担任领导角色后的超时时间，如果在此时间内没有达到法定人数的支持，则应该回退到  follower
	// MaxAppendEntries 单次提交支持的最长批量日志长度
	MaxAppendEntries  int
	SnapshotThreshold uint64
	// TrailingLogs controls how many logs we leave after a snapshot. This is used
	// so that we can quickly replay logs on a follower instead of being forced to
	// send an entire snapshot. The value passed here is the initial setting used.
	// This can be tuned during operation using SetConfig.
	TrailingLogs uint64
	// ShutdownOnRemove controls what a node does once a committed
	// configuration no longer lists it: if set, the node shuts down;
	// otherwise a leader steps down to follower and a follower keeps running.
	ShutdownOnRemove   bool
	MaxPool            int
	TransportTimeout   time.Duration
	NetLayer           NetLayer
	ServerAddrProvider ServerAddrProvider
	Logger             Logger
	// SnapshotChunkSize bounds how many bytes of a snapshot stream
	// (metadata or payload) travel in a single InstallSnapshot RPC.
	SnapshotChunkSize int64
	// DataDir, when set, roots the file-backed metadata/log/snapshot
	// stores NewRaftWithDataDir constructs. Left empty for in-memory
	// stores built directly with NewRaft.
	DataDir string
}

type Member struct {
	Addr net.Addr
}

// NoneServerID marks the absence of a voted-for/leader server, matching the
// zero-value sentinel the original implementation uses for "no server".
const NoneServerID ServerID = ""

// SnapshotLogLengthThreshold and SnapshotChunkSize seed DefaultConfig's
// snapshot tunables.
const (
	SnapshotLogLengthThreshold = 5
	SnapshotChunkSize          = 16 * 1024
)

// DefaultConfig returns a Conf with defaults usable in a single process
// without a config loader (1s heartbeat timeout, 2s election timeout, 30s
// snapshot checks): callers still need to set LocalID/LocalAddr.
func DefaultConfig() *Conf {
	return &Conf{
		HeartBeatCycle:    500 * time.Millisecond,
		HeartBeatTimeout:  time.Second,
		ElectionTimeout:   2 * time.Second,
		CommitTimeout:     50 * time.Millisecond,
		LeaderShipTimeout: time.Second,
		SnapshotInterval:  30 * time.Second,
		SnapshotThreshold: SnapshotLogLengthThreshold,
		TrailingLogs:      SnapshotLogLengthThreshold,
		MaxAppendEntries:  64,
		MaxPool:           3,
		TransportTimeout:  2 * time.Second,
		Logger:            NewLogger("raft"),
		SnapshotChunkSize: SnapshotChunkSize,
	}
}

var Config = &Conf{
	LocalAddr: func() net.Addr {
		addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:8888")
		if err != nil {
			panic(fmt.Errorf("ResolveTCPAddr err :%s", err))
		}
		return addr
	}(),
	HeartBeatCycle: time.Second * 5,
	Logger:         NewLogger("raft"),
}

func validateConf(config *Conf) error {
	ef := fmt.Errorf
	if len(config.LocalID) == 0 {
		return ef("local id is nil")
	}
	if config.HeartBeatTimeout < 5*time.Millisecond {
		return fmt.Errorf("HeartbeatTimeout is too low")
	}
	if config.ElectionTimeout < 5*time.Millisecond {
		return fmt.Errorf("ElectionTimeout is too low")
	}
	if config.CommitTimeout < time.Millisecond {
		return fmt.Errorf("CommitTimeout is too low")
	}
	if config.MaxAppendEntries <= 0 {
		return fmt.Errorf("MaxAppendEntries must be positive")
	}
	if config.MaxAppendEntries > 1024 {
		return fmt.Errorf("MaxAppendEntries is too large")
	}
	if config.SnapshotInterval < 5*time.Millisecond {
		return fmt.Errorf("SnapshotInterval is too low")
	}
	if config.LeaderShipTimeout < 5*time.Millisecond {
		return fmt.Errorf("LeaderLeaseTimeout is too low")
	}
	if config.LeaderShipTimeout > config.HeartBeatTimeout {
		return fmt.Errorf("LeaderLeaseTimeout (%s) cannot be larger than heartbeat timeout (%s)", config.LeaderShipTimeout, config.HeartBeatTimeout)
	}
	if config.ElectionTimeout < config.HeartBeatTimeout {
		return fmt.Errorf("ElectionTimeout (%s) must be equal or greater than Heartbeat Timeout (%s)", config.ElectionTimeout, config.HeartBeatTimeout)
	}
	return nil
}
