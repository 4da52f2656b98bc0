package raft

import (
	"sync"
)

// commitment tracks each voter's match index and derives the commit index
// the leader can safely advance to. Under joint consensus (configuration.IsJoint)
// this requires independent majorities of both halves of the configuration.
type commitment struct {
	lock          sync.Mutex
	commitCh      chan struct{}
	matchIndex    map[ServerID]uint64
	commitIndex   uint64
	startIndex    uint64
	configuration Configuration
}

func newCommitment(commitCh chan struct{}, configuration Configuration, startIndex uint64) *commitment {
	c := &commitment{
		commitCh:   commitCh,
		matchIndex: map[ServerID]uint64{},
		startIndex: startIndex,
	}
	c.setConfigurationLocked(configuration)
	return c
}

func (c *commitment) setConfiguration(config Configuration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.setConfigurationLocked(config)
}

func (c *commitment) setConfigurationLocked(config Configuration) {
	oldMatchIndex := c.matchIndex
	c.matchIndex = map[ServerID]uint64{}
	for _, server := range config.AllServers() {
		if server.Suffrage == Voter {
			c.matchIndex[server.ID] = oldMatchIndex[server.ID]
		}
	}
	c.configuration = config
	c.recalculate()
}

func (c *commitment) GetCommitIndex() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.commitIndex
}

func (c *commitment) match(id ServerID, matchIndex uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if prev, ok := c.matchIndex[id]; ok && matchIndex > prev {
		c.matchIndex[id] = matchIndex
		c.recalculate()
	}
}

func (c *commitment) recalculate() {
	if len(c.matchIndex) == 0 {
		return
	}
	quorumMatchIndex := c.configuration.QuorumCommitIndex(c.matchIndex)
	if quorumMatchIndex > c.commitIndex && quorumMatchIndex >= c.startIndex {
		c.commitIndex = quorumMatchIndex
		asyncNotify(c.commitCh)
	}
}
