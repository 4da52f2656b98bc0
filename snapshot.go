package raft

import (
	"io"
)

type (
	SnapShotStore interface {
		Open(id string) (*SnapShotMeta, io.ReadCloser, error)
		List() ([]*SnapShotMeta, error)
		Create(version SnapShotVersion, index, term uint64, configuration Configuration, configurationIndex uint64, rpc RpcInterface) (SnapShotSink, error)

		// BeginInstall starts (or resumes) receiving a chunked snapshot for
		// lastIncludedIndex/lastIncludedTerm. Receiving a request for a
		// strictly greater lastIncludedIndex than the currently in-flight
		// install aborts and discards that install's partial state, so a
		// new leader's snapshot always wins over a stale one.
		BeginInstall(lastIncludedIndex, lastIncludedTerm uint64, configuration Configuration, configurationIndex uint64) (*InstallHandle, error)
		// WriteChunk appends one chunk of the given kind to the named
		// in-flight install. done marks the last chunk of that stream; once
		// both the METADATA and PAYLOAD streams have reported done, the
		// install is committed and becomes visible via Open/List.
		WriteChunk(id string, kind SnapshotDataType, offset int64, data []byte, done bool) error
		// ReadChunk is the sender side of the same protocol, used to stream
		// an already-committed snapshot out in chunks.
		ReadChunk(id string, kind SnapshotDataType, offset int64, maxBytes int) (data []byte, done bool, err error)
	}
	SnapShotSink interface {
		io.WriteCloser
		ID() string
		Cancel() error
	}
	SnapShotVersion uint64
	SnapShotMeta    struct {
		Version            SnapShotVersion
		ID                 string
		Index              uint64
		Term               uint64
		Configuration      Configuration
		ConfigurationIndex uint64
		Size               int64
	}
	// InstallHandle identifies an in-progress InstallSnapshot transfer.
	InstallHandle struct {
		ID                 string
		LastIncludedIndex  uint64
		LastIncludedTerm   uint64
		Configuration      Configuration
		ConfigurationIndex uint64
	}
)

const (
	SnapShotVersionMin SnapShotVersion = iota + 1
	SnapShotVersionMax
)

func (r *Raft) shouldBuildSnapShot() bool {
	_, index := r.getLastSnapShot()
	lastIndex, err := r.logStore.LastIndex()
	if err != nil {
		return false
	}
	return lastIndex-index > r.Config().SnapshotThreshold
}

func (r *Raft) compactLogEntries(index uint64) error {
	minLogIndex, err := r.logStore.FirstIndex()
	if err != nil {
		return err
	}
	trailingLogs := r.Config().TrailingLogs
	_, lastIndex := r.getLastLog()
	if lastIndex < trailingLogs {
		return nil
	}

	maxLogIndex := Min(index, lastIndex-trailingLogs)

	if minLogIndex > maxLogIndex {
		return nil
	}

	return r.logStore.DeleteRange(minLogIndex, maxLogIndex)
}
func (r *Raft) buildSnapShot() (string, error) {

	req := &reqSnapShotFuture{}
	req.init()
	select {
	case r.fsmSnapshotCh <- req:
	case <-r.shutDown.C:
		return "", ErrShutDown
	}

	sresp, err := req.Response()
	if err != nil {
		return "", err
	}

	defer sresp.fsmSnapShot.Release()

	configurationFuture := new(configurationsGetFuture)
	configurationFuture.init()
	select {
	case r.configurationsGetCh <- configurationFuture:
	case <-r.shutDown.C:
		return "", ErrShutDown
	}
	cresp, err := configurationFuture.Response()
	if err != nil {
		return "", nil
	}

	commit := cresp.commit
	commitIndex := cresp.commitIndex

	if sresp.index < commitIndex {
		return "", nil
	}
	sink, err := r.snapShotStore.Create(1, sresp.index, sresp.term, commit, commitIndex, r.rpc)
	if err != nil {
		return "", err
	}

	if err = sresp.fsmSnapShot.Persist(sink); err != nil {
		sink.Cancel()
		return "", err
	}
	if err = sink.Close(); err != nil {
		return "", err
	}
	r.setLastSnapShot(sresp.term, sresp.index)
	r.compactLogEntries(sresp.index)

	return sink.ID(), err
}
func (r *Raft) runSnapShot() {
	for {
		select {
		case <-r.timers.snapshot.C():
			r.timers.snapshot.Reset(r.Config().SnapshotInterval)
			if !r.shouldBuildSnapShot() {
				continue
			}
			_, _ = r.buildSnapShot()

		case fu := <-r.userSnapShotFutureCh:
			if id, err := r.buildSnapShot(); err != nil {
				fu.fail(err)
			} else {
				fu.responded(func() (meta *SnapShotMeta, closer io.ReadCloser, err error) {
					return r.snapShotStore.Open(id)
				}, nil)
			}
		case <-r.shutDown.C:
			return
		}

	}
}
