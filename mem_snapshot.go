package raft

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"sync"
	"time"

	"io"
)

// memSnapshot is an in-memory SnapShotStore: committed snapshots taken via
// Create live in latest, and at most one chunked install (via
// BeginInstall/WriteChunk) may be in flight at a time.
type memSnapshot struct {
	sync.Mutex
	latest    *memSnapshotSink
	has       bool
	committed map[string]*memInstalled
	active    *memInstall
}

type memSnapshotSink struct {
	meta *SnapShotMeta
	buf  *bytes.Buffer
}

// memInstall tracks an in-progress chunked InstallSnapshot transfer.
type memInstall struct {
	handle       InstallHandle
	metaBuf      bytes.Buffer
	metaDone     bool
	payloadBuf   bytes.Buffer
	payloadDone  bool
}

// memInstalled is a snapshot completed via the chunked install path,
// distinct from memSnapshotSink so ReadChunk can serve either kind by ID.
type memInstalled struct {
	meta    *SnapShotMeta
	payload []byte
}

func newMemSnapshotStore() *memSnapshot {
	return &memSnapshot{committed: map[string]*memInstalled{}}
}

func (m *memSnapshotSink) Write(p []byte) (n int, err error) {
	size, err := m.buf.Write(p)
	m.meta.Size += int64(size)
	return size, err
}

func (m *memSnapshotSink) Close() error {
	return nil
}

func (m *memSnapshotSink) ID() string {
	return m.meta.ID
}

func (m *memSnapshotSink) Cancel() error {
	return nil
}

func (m *memSnapshot) Open(id string) (*SnapShotMeta, io.ReadCloser, error) {
	m.Lock()
	defer m.Unlock()
	if m.has && m.latest.meta.ID == id {
		buffer := bytes.NewBuffer(m.latest.buf.Bytes())
		return m.latest.meta, ioutil.NopCloser(buffer), nil
	}
	if installed, ok := m.committed[id]; ok {
		return installed.meta, ioutil.NopCloser(bytes.NewBuffer(installed.payload)), nil
	}
	return nil, nil, errNotExist
}

func snapshotName(term, index uint64) string {
	now := time.Now()
	msec := now.UnixNano() / int64(time.Millisecond)
	return fmt.Sprintf("%d-%d-%d", term, index, msec)
}

func (m *memSnapshot) List() ([]*SnapShotMeta, error) {
	m.Lock()
	defer m.Unlock()
	var out []*SnapShotMeta
	if m.has {
		out = append(out, m.latest.meta)
	}
	for _, installed := range m.committed {
		out = append(out, installed.meta)
	}
	return out, nil
}

func (m *memSnapshot) Create(version SnapShotVersion, index, term uint64, configuration Configuration, configurationIndex uint64, rpc RpcInterface) (SnapShotSink, error) {
	m.Lock()
	defer m.Unlock()
	sink := memSnapshotSink{
		meta: &SnapShotMeta{
			Version:            version,
			ID:                 snapshotName(term, index),
			Index:              index,
			Term:               term,
			Configuration:      configuration,
			ConfigurationIndex: configurationIndex,
			Size:               0,
		},
		buf: &bytes.Buffer{},
	}
	m.has = true
	m.latest = &sink
	return &sink, nil
}

// BeginInstall starts a new chunked install, superseding any in-flight
// install for a strictly lower last_included_index.
func (m *memSnapshot) BeginInstall(lastIncludedIndex, lastIncludedTerm uint64, configuration Configuration, configurationIndex uint64) (*InstallHandle, error) {
	m.Lock()
	defer m.Unlock()

	if m.active != nil {
		switch {
		case m.active.handle.LastIncludedIndex == lastIncludedIndex:
			h := m.active.handle
			return &h, nil
		case lastIncludedIndex < m.active.handle.LastIncludedIndex:
			return nil, fmt.Errorf("install for index %d superseded by in-flight install for index %d", lastIncludedIndex, m.active.handle.LastIncludedIndex)
		}
		// strictly greater: fall through and discard the stale install
	}

	handle := InstallHandle{
		ID:                 snapshotName(lastIncludedTerm, lastIncludedIndex),
		LastIncludedIndex:  lastIncludedIndex,
		LastIncludedTerm:   lastIncludedTerm,
		Configuration:      configuration,
		ConfigurationIndex: configurationIndex,
	}
	m.active = &memInstall{handle: handle}
	return &handle, nil
}

func (m *memSnapshot) WriteChunk(id string, kind SnapshotDataType, offset int64, data []byte, done bool) error {
	m.Lock()
	defer m.Unlock()

	if m.active == nil || m.active.handle.ID != id {
		return fmt.Errorf("install %s not found or superseded", id)
	}

	switch kind {
	case SnapshotDataMetadata:
		if offset != int64(m.active.metaBuf.Len()) {
			return fmt.Errorf("out of order metadata chunk at offset %d", offset)
		}
		m.active.metaBuf.Write(data)
		m.active.metaDone = done
	case SnapshotDataPayload:
		if offset != int64(m.active.payloadBuf.Len()) {
			return fmt.Errorf("out of order payload chunk at offset %d", offset)
		}
		m.active.payloadBuf.Write(data)
		m.active.payloadDone = done
	default:
		return fmt.Errorf("unknown snapshot chunk kind %d", kind)
	}

	if m.active.metaDone && m.active.payloadDone {
		m.commitActiveLocked()
	}
	return nil
}

func (m *memSnapshot) commitActiveLocked() {
	install := m.active
	meta := &SnapShotMeta{
		ID:                 install.handle.ID,
		Index:              install.handle.LastIncludedIndex,
		Term:               install.handle.LastIncludedTerm,
		Configuration:      install.handle.Configuration,
		ConfigurationIndex: install.handle.ConfigurationIndex,
		Size:               int64(install.payloadBuf.Len()),
	}
	if install.metaBuf.Len() > 0 {
		var decoded SnapShotMeta
		if err := json.Unmarshal(install.metaBuf.Bytes(), &decoded); err == nil {
			decoded.ID = meta.ID
			meta = &decoded
		}
	}
	m.committed[install.handle.ID] = &memInstalled{meta: meta, payload: append([]byte(nil), install.payloadBuf.Bytes()...)}
	m.active = nil
}

func (m *memSnapshot) ReadChunk(id string, kind SnapshotDataType, offset int64, maxBytes int) (data []byte, done bool, err error) {
	m.Lock()
	defer m.Unlock()

	var (
		metaBytes []byte
		payload   []byte
	)
	switch {
	case m.has && m.latest.meta.ID == id:
		metaBytes, err = json.Marshal(m.latest.meta)
		if err != nil {
			return nil, false, err
		}
		payload = m.latest.buf.Bytes()
	default:
		installed, ok := m.committed[id]
		if !ok {
			return nil, false, errNotExist
		}
		metaBytes, err = json.Marshal(installed.meta)
		if err != nil {
			return nil, false, err
		}
		payload = installed.payload
	}

	var source []byte
	switch kind {
	case SnapshotDataMetadata:
		source = metaBytes
	case SnapshotDataPayload:
		source = payload
	default:
		return nil, false, fmt.Errorf("unknown snapshot chunk kind %d", kind)
	}

	if offset >= int64(len(source)) {
		return nil, true, nil
	}
	end := offset + int64(maxBytes)
	if end > int64(len(source)) {
		end = int64(len(source))
	}
	return source[offset:end], end >= int64(len(source)), nil
}
