package raft

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
)

// fileSnapshotStore keeps one snapshot per ID under dataDir/snapshots/<id>/,
// each holding snapshot.metadata and snapshot.payload written temp-then-rename
// so a crash mid-write never leaves a half-committed snapshot visible to
// List/Open. At most one chunked install may be in flight at a time; a
// request for a strictly greater last_included_index discards the
// in-progress install's temp files and starts over.
type fileSnapshotStore struct {
	sync.Mutex
	dir    string
	latest *SnapShotMeta
	active *fileInstall
}

type fileInstall struct {
	handle      InstallHandle
	dir         string
	metaFile    *os.File
	metaWritten int64
	metaDone    bool
	dataFile    *os.File
	dataWritten int64
	dataDone    bool
}

func snapshotsRoot(dataDir string) string {
	return filepath.Join(dataDir, "snapshots")
}

func snapshotDir(dataDir, id string) string {
	return filepath.Join(snapshotsRoot(dataDir), id)
}

func newFileSnapshotStore(dataDir string) (*fileSnapshotStore, error) {
	root := snapshotsRoot(dataDir)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	s := &fileSnapshotStore{dir: dataDir}
	metas, err := s.readAllMeta()
	if err != nil {
		return nil, err
	}
	if len(metas) > 0 {
		s.latest = metas[0]
		for _, m := range metas[1:] {
			if m.Index > s.latest.Index {
				s.latest = m
			}
		}
	}
	return s, nil
}

func (s *fileSnapshotStore) readAllMeta() ([]*SnapShotMeta, error) {
	root := snapshotsRoot(s.dir)
	entries, err := ioutil.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []*SnapShotMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, e.Name(), "snapshot.metadata"))
		if err != nil {
			continue
		}
		var meta SnapShotMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		out = append(out, &meta)
	}
	return out, nil
}

type fileSnapshotSink struct {
	store *fileSnapshotStore
	meta  *SnapShotMeta
	dir   string
	tmp   *os.File
}

func (f *fileSnapshotSink) Write(p []byte) (int, error) {
	n, err := f.tmp.Write(p)
	f.meta.Size += int64(n)
	return n, err
}

func (f *fileSnapshotSink) ID() string { return f.meta.ID }

func (f *fileSnapshotSink) Cancel() error {
	f.tmp.Close()
	return os.RemoveAll(f.dir)
}

func (f *fileSnapshotSink) Close() error {
	if err := f.tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(filepath.Join(f.dir, "snapshot.payload.tmp"), filepath.Join(f.dir, "snapshot.payload")); err != nil {
		return err
	}
	metaData, err := json.Marshal(f.meta)
	if err != nil {
		return err
	}
	metaPath := filepath.Join(f.dir, "snapshot.metadata")
	if err := os.WriteFile(metaPath+".tmp", metaData, 0644); err != nil {
		return err
	}
	if err := os.Rename(metaPath+".tmp", metaPath); err != nil {
		return err
	}
	f.store.Lock()
	f.store.latest = f.meta
	f.store.Unlock()
	return nil
}

func (s *fileSnapshotStore) Create(version SnapShotVersion, index, term uint64, configuration Configuration, configurationIndex uint64, rpc RpcInterface) (SnapShotSink, error) {
	id := snapshotName(term, index)
	dir := snapshotDir(s.dir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	tmp, err := os.Create(filepath.Join(dir, "snapshot.payload.tmp"))
	if err != nil {
		return nil, err
	}
	return &fileSnapshotSink{
		store: s,
		dir:   dir,
		tmp:   tmp,
		meta: &SnapShotMeta{
			Version:            version,
			ID:                 id,
			Index:              index,
			Term:               term,
			Configuration:      configuration,
			ConfigurationIndex: configurationIndex,
		},
	}, nil
}

func (s *fileSnapshotStore) Open(id string) (*SnapShotMeta, io.ReadCloser, error) {
	dir := snapshotDir(s.dir, id)
	data, err := os.ReadFile(filepath.Join(dir, "snapshot.metadata"))
	if err != nil {
		return nil, nil, errNotExist
	}
	var meta SnapShotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(dir, "snapshot.payload"))
	if err != nil {
		return nil, nil, err
	}
	return &meta, f, nil
}

func (s *fileSnapshotStore) List() ([]*SnapShotMeta, error) {
	return s.readAllMeta()
}

// BeginInstall starts (or resumes) a chunked install rooted at
// dataDir/snapshots/<id>.installing, superseding any in-flight install for
// a strictly lower last_included_index.
func (s *fileSnapshotStore) BeginInstall(lastIncludedIndex, lastIncludedTerm uint64, configuration Configuration, configurationIndex uint64) (*InstallHandle, error) {
	s.Lock()
	defer s.Unlock()

	if s.active != nil {
		switch {
		case s.active.handle.LastIncludedIndex == lastIncludedIndex:
			h := s.active.handle
			return &h, nil
		case lastIncludedIndex < s.active.handle.LastIncludedIndex:
			return nil, fmt.Errorf("install for index %d superseded by in-flight install for index %d", lastIncludedIndex, s.active.handle.LastIncludedIndex)
		default:
			s.discardActiveLocked()
		}
	}

	id := snapshotName(lastIncludedTerm, lastIncludedIndex)
	dir := snapshotDir(s.dir, id) + ".installing"
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	metaFile, err := os.Create(filepath.Join(dir, "snapshot.metadata.tmp"))
	if err != nil {
		return nil, err
	}
	dataFile, err := os.Create(filepath.Join(dir, "snapshot.payload.tmp"))
	if err != nil {
		metaFile.Close()
		return nil, err
	}
	handle := InstallHandle{
		ID:                 id,
		LastIncludedIndex:  lastIncludedIndex,
		LastIncludedTerm:   lastIncludedTerm,
		Configuration:      configuration,
		ConfigurationIndex: configurationIndex,
	}
	s.active = &fileInstall{handle: handle, dir: dir, metaFile: metaFile, dataFile: dataFile}
	return &handle, nil
}

func (s *fileSnapshotStore) discardActiveLocked() {
	if s.active == nil {
		return
	}
	s.active.metaFile.Close()
	s.active.dataFile.Close()
	os.RemoveAll(s.active.dir)
	s.active = nil
}

func (s *fileSnapshotStore) WriteChunk(id string, kind SnapshotDataType, offset int64, data []byte, done bool) error {
	s.Lock()
	defer s.Unlock()

	if s.active == nil || s.active.handle.ID != id {
		return fmt.Errorf("install %s not found or superseded", id)
	}
	install := s.active

	switch kind {
	case SnapshotDataMetadata:
		if offset != install.metaWritten {
			return fmt.Errorf("out of order metadata chunk at offset %d", offset)
		}
		n, err := install.metaFile.Write(data)
		install.metaWritten += int64(n)
		if err != nil {
			return err
		}
		install.metaDone = done
	case SnapshotDataPayload:
		if offset != install.dataWritten {
			return fmt.Errorf("out of order payload chunk at offset %d", offset)
		}
		n, err := install.dataFile.Write(data)
		install.dataWritten += int64(n)
		if err != nil {
			return err
		}
		install.dataDone = done
	default:
		return fmt.Errorf("unknown snapshot chunk kind %d", kind)
	}

	if install.metaDone && install.dataDone {
		return s.commitActiveLocked()
	}
	return nil
}

func (s *fileSnapshotStore) commitActiveLocked() error {
	install := s.active
	if err := install.metaFile.Close(); err != nil {
		return err
	}
	if err := install.dataFile.Close(); err != nil {
		return err
	}

	finalDir := snapshotDir(s.dir, install.handle.ID)
	if err := os.RemoveAll(finalDir); err != nil {
		return err
	}
	if err := os.MkdirAll(finalDir, 0755); err != nil {
		return err
	}

	var meta SnapShotMeta
	metaBytes, err := os.ReadFile(filepath.Join(install.dir, "snapshot.metadata.tmp"))
	if err == nil && len(metaBytes) > 0 {
		json.Unmarshal(metaBytes, &meta)
	}
	meta.ID = install.handle.ID
	meta.Index = install.handle.LastIncludedIndex
	meta.Term = install.handle.LastIncludedTerm
	meta.Configuration = install.handle.Configuration
	meta.ConfigurationIndex = install.handle.ConfigurationIndex
	meta.Size = install.dataWritten

	if err := os.Rename(filepath.Join(install.dir, "snapshot.payload.tmp"), filepath.Join(finalDir, "snapshot.payload")); err != nil {
		return err
	}
	finalMeta, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	metaPath := filepath.Join(finalDir, "snapshot.metadata")
	if err := os.WriteFile(metaPath+".tmp", finalMeta, 0644); err != nil {
		return err
	}
	if err := os.Rename(metaPath+".tmp", metaPath); err != nil {
		return err
	}
	os.RemoveAll(install.dir)

	s.latest = &meta
	s.active = nil
	return nil
}

func (s *fileSnapshotStore) ReadChunk(id string, kind SnapshotDataType, offset int64, maxBytes int) (data []byte, done bool, err error) {
	dir := snapshotDir(s.dir, id)

	var source []byte
	switch kind {
	case SnapshotDataMetadata:
		source, err = os.ReadFile(filepath.Join(dir, "snapshot.metadata"))
	case SnapshotDataPayload:
		source, err = os.ReadFile(filepath.Join(dir, "snapshot.payload"))
	default:
		return nil, false, fmt.Errorf("unknown snapshot chunk kind %d", kind)
	}
	if err != nil {
		return nil, false, errNotExist
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
