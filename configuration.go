package raft

type ServerSuffrage int

const (
	Voter ServerSuffrage = iota
	NonVoter
)

// ConfigState reports how a server relates to a (possibly joint) Configuration.
type ConfigState int

const (
	// NotInConfig means the server appears in neither half of the configuration.
	NotInConfig ConfigState = iota
	// OldOnly means the server appears only in the old (C_old) half.
	OldOnly
	// NewOnly means the server appears only in the new (C_new) half.
	NewOnly
	// Both means the server appears in both halves of a joint configuration.
	Both
)

// Configuration is the set of servers participating in the cluster. During a
// membership change it holds both halves of the joint consensus: Servers is
// C_old (or the stable configuration when NewServers is empty) and
// NewServers is C_new. Committing an entry while NewServers is non-empty
// requires majorities of BOTH halves independently.
type Configuration struct {
	Servers    []ServerInfo
	NewServers []ServerInfo
}

type configurations struct {
	commit      Configuration
	latest      Configuration
	commitIndex uint64
	latestIndex uint64
}

// ConfigurationStore provides an interface that can optionally be implemented by FSMs
// to store configuration updates made in the replicated log. In general this is only
// necessary for FSMs that mutate durable state directly instead of applying changes
// in memory and snapshotting periodically. By storing configuration changes, the
// persistent FSM state can behave as a complete snapshot, and be able to recover
// without an external snapshot just for persisting the raft configuration.
type ConfigurationStore interface {
	// ConfigurationStore is a superset of the FSM functionality
	LogFSM

	// StoreConfiguration is invoked once a log entry containing a configuration
	// change is committed. It takes the index at which the configuration was
	// written and the configuration value.
	StoreConfiguration(index uint64, configuration Configuration)
}
type configurationChangeCommend uint64
type configurationChangeRequest struct {
	command   configurationChangeCommend
	peer      ServerInfo
	servers   []ServerInfo
	pervIndex uint64
}

const (
	AddVoter configurationChangeCommend = iota + 1
	AddNonVoter
	DemoteVoter
	removeServer
	// setServers replaces the whole membership list wholesale, driving a
	// StartTransition/FinalizeTransition joint-consensus round trip instead
	// of mutating a single server.
	setServers
)

func (c Configuration) IsJoint() bool {
	return len(c.NewServers) > 0
}

func (c Configuration) IsEmpty() bool {
	return len(c.Servers) == 0 && len(c.NewServers) == 0
}

// AllServers returns the union of both halves, deduplicated by ID with the
// new-configuration entry winning when a server appears in both.
func (c Configuration) AllServers() []ServerInfo {
	byID := make(map[ServerID]ServerInfo, len(c.Servers)+len(c.NewServers))
	var order []ServerID
	for _, s := range c.Servers {
		if _, ok := byID[s.ID]; !ok {
			order = append(order, s.ID)
		}
		byID[s.ID] = s
	}
	for _, s := range c.NewServers {
		if _, ok := byID[s.ID]; !ok {
			order = append(order, s.ID)
		}
		byID[s.ID] = s
	}
	result := make([]ServerInfo, 0, len(order))
	for _, id := range order {
		result = append(result, byID[id])
	}
	return result
}

// AllIDs returns the IDs of AllServers, in the same order.
func (c Configuration) AllIDs() []ServerID {
	all := c.AllServers()
	ids := make([]ServerID, len(all))
	for i, s := range all {
		ids[i] = s.ID
	}
	return ids
}

// StateFor reports how id relates to this (possibly joint) configuration.
func (c Configuration) StateFor(id ServerID) ConfigState {
	inOld := memberOf(c.Servers, id)
	if !c.IsJoint() {
		if inOld {
			return OldOnly
		}
		return NotInConfig
	}
	inNew := memberOf(c.NewServers, id)
	switch {
	case inOld && inNew:
		return Both
	case inOld:
		return OldOnly
	case inNew:
		return NewOnly
	default:
		return NotInConfig
	}
}

func memberOf(servers []ServerInfo, id ServerID) bool {
	for _, s := range servers {
		if s.ID == id {
			return true
		}
	}
	return false
}

// quorumIndex returns the highest index a majority of the voters in servers
// have reached, given each voter's reported match index.
func quorumIndex(match map[ServerID]uint64, servers []ServerInfo) uint64 {
	matched := make([]uint64, 0, len(servers))
	for _, s := range servers {
		if s.Suffrage != Voter {
			continue
		}
		matched = append(matched, match[s.ID])
	}
	if len(matched) == 0 {
		return 0
	}
	SortSlice(matched)
	return matched[(len(matched)-1)/2]
}

// QuorumCommitIndex returns the highest index safe to commit given the
// leader's view of every voter's match index. Under joint consensus the
// index must be backed by independent majorities of both C_old and C_new.
func (c Configuration) QuorumCommitIndex(match map[ServerID]uint64) uint64 {
	oldIdx := quorumIndex(match, c.Servers)
	if !c.IsJoint() {
		return oldIdx
	}
	newIdx := quorumIndex(match, c.NewServers)
	return Min(oldIdx, newIdx)
}

// VoteQuorum reports whether the given set of granting voter IDs forms a
// quorum of this (possibly joint) configuration.
func (c Configuration) VoteQuorum(granted map[ServerID]bool) bool {
	if !hasQuorum(granted, c.Servers) {
		return false
	}
	if c.IsJoint() && !hasQuorum(granted, c.NewServers) {
		return false
	}
	return true
}

func hasQuorum(granted map[ServerID]bool, servers []ServerInfo) bool {
	var voters, yes int
	for _, s := range servers {
		if s.Suffrage != Voter {
			continue
		}
		voters++
		if granted[s.ID] {
			yes++
		}
	}
	if voters == 0 {
		return true
	}
	return yes*2 > voters
}

// StartTransition moves a stable configuration into the joint phase C_old,new.
func (c Configuration) StartTransition(next []ServerInfo) Configuration {
	return Configuration{Servers: c.Servers, NewServers: next}
}

// FinalizeTransition drops C_old, leaving C_new as the sole, stable configuration.
func (c Configuration) FinalizeTransition() Configuration {
	if !c.IsJoint() {
		return c
	}
	return Configuration{Servers: c.NewServers}
}

func (c Configuration) Clone() Configuration {
	out := Configuration{}
	out.Servers = append(out.Servers, c.Servers...)
	out.NewServers = append(out.NewServers, c.NewServers...)
	return out
}

func (c *configurations) Clone() configurations {
	res := configurations{
		commit:      c.commit.Clone(),
		latest:      c.latest.Clone(),
		commitIndex: c.commitIndex,
		latestIndex: c.latestIndex,
	}
	return res
}
