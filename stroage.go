package raft

// Metadata is the durable subset of node state that must survive a
// restart: the current term and who this node voted for during it.
type Metadata struct {
	CurrentTerm uint64
	VotedFor    ServerID
}

// MetadataStore provides durable storage for (current_term, voted_for).
// UpdateCurrentTerm/UpdateVotedFor apply to an in-memory copy immediately
// and mark it dirty; Sync blocks until every update made so far has been
// made durable, which callers use to satisfy durability-before-response
// around term changes and vote grants.
type MetadataStore interface {
	// Get returns the last known metadata.
	Get() Metadata
	// UpdateCurrentTerm records a new current term.
	UpdateCurrentTerm(term uint64) error
	// UpdateVotedFor records who this node voted for in the current term.
	UpdateVotedFor(id ServerID) error
	// Sync blocks until every update issued before it returns has been
	// durably persisted.
	Sync() error
	// Close stops any background writer and releases held resources.
	Close() error
}
