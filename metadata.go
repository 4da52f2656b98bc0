package raft

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// metadataCommand is the actor's command union: exactly one field is set.
type metadataCommand struct {
	updateTerm *uint64
	updateVote *ServerID
	flush      chan struct{}
}

// memMetadataStore is an in-memory MetadataStore for tests; Sync/Close are
// no-ops since there's nothing to make durable.
type memMetadataStore struct {
	meta *LockItem[Metadata]
}

func newMemMetadataStore() *memMetadataStore {
	return &memMetadataStore{meta: NewLockItem(Metadata{VotedFor: NoneServerID})}
}

func (m *memMetadataStore) Get() Metadata { return m.meta.Get() }

func (m *memMetadataStore) UpdateCurrentTerm(term uint64) error {
	m.meta.Action(func(t *Metadata) { t.CurrentTerm = term })
	return nil
}

func (m *memMetadataStore) UpdateVotedFor(id ServerID) error {
	m.meta.Action(func(t *Metadata) { t.VotedFor = id })
	return nil
}

func (m *memMetadataStore) Sync() error  { return nil }
func (m *memMetadataStore) Close() error { return nil }

func metadataFilePath(dir string) string {
	return filepath.Join(dir, "metadata.json")
}

func loadMetadataFile(dir string) (Metadata, error) {
	data, err := os.ReadFile(metadataFilePath(dir))
	if os.IsNotExist(err) {
		return Metadata{VotedFor: NoneServerID}, nil
	}
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

func persistMetadataFile(path string, m Metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// fileMetadataStore persists (current_term, voted_for) to metadata.json
// under a data directory. Updates land in an in-memory cache immediately
// (so Get never blocks on disk) and are queued to a single background
// writer goroutine that only touches disk when the cached state is dirty,
// either on its periodic tick or when Sync is called.
type fileMetadataStore struct {
	cache  *LockItem[Metadata]
	cmdCh  chan metadataCommand
	doneCh chan struct{}
	path   string
}

const defaultMetadataFlushInterval = time.Second

func newFileMetadataStore(dir string) (*fileMetadataStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	initial, err := loadMetadataFile(dir)
	if err != nil {
		return nil, err
	}
	s := &fileMetadataStore{
		cache:  NewLockItem(initial),
		cmdCh:  make(chan metadataCommand, 64),
		doneCh: make(chan struct{}),
		path:   metadataFilePath(dir),
	}
	go s.run(initial)
	return s, nil
}

func (s *fileMetadataStore) run(state Metadata) {
	defer close(s.doneCh)
	dirty := false
	ticker := time.NewTicker(defaultMetadataFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if !dirty {
			return
		}
		if err := persistMetadataFile(s.path, state); err == nil {
			dirty = false
		}
	}

	for {
		select {
		case cmd, ok := <-s.cmdCh:
			if !ok {
				flush()
				return
			}
			switch {
			case cmd.updateTerm != nil:
				if state.CurrentTerm != *cmd.updateTerm {
					state.CurrentTerm = *cmd.updateTerm
					dirty = true
				}
			case cmd.updateVote != nil:
				if state.VotedFor != *cmd.updateVote {
					state.VotedFor = *cmd.updateVote
					dirty = true
				}
			case cmd.flush != nil:
				flush()
				close(cmd.flush)
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *fileMetadataStore) Get() Metadata {
	return s.cache.Get()
}

func (s *fileMetadataStore) UpdateCurrentTerm(term uint64) error {
	s.cache.Action(func(t *Metadata) { t.CurrentTerm = term })
	s.cmdCh <- metadataCommand{updateTerm: &term}
	return nil
}

func (s *fileMetadataStore) UpdateVotedFor(id ServerID) error {
	s.cache.Action(func(t *Metadata) { t.VotedFor = id })
	s.cmdCh <- metadataCommand{updateVote: &id}
	return nil
}

// Sync blocks until every update issued before it on this goroutine has
// been durably written, by round-tripping through the writer actor.
func (s *fileMetadataStore) Sync() error {
	ack := make(chan struct{})
	s.cmdCh <- metadataCommand{flush: ack}
	<-ack
	return nil
}

func (s *fileMetadataStore) Close() error {
	close(s.cmdCh)
	<-s.doneCh
	return nil
}
