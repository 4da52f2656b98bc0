package raft

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fuyao-w/deepcopy"
)

// onDiskLog is raft.log's on-disk shape: the full materialized entry set
// plus the index bounds, matching the "serialize the materialized entry
// vector, atomically replace the file on every mutation" persistence mode.
type onDiskLog struct {
	FirstIndex uint64
	LastIndex  uint64
	Entries    map[uint64]*LogEntry
}

// fileLogStore is a LogStore that keeps the full log in memory and
// atomically rewrites raft.log on every SetLogs/DeleteRange call, trading
// write amplification on a large log for a trivially simple recovery path:
// on restart the entire file is just unmarshalled back into memory.
type fileLogStore struct {
	path string
	log  *LockItem[memLog]
}

func logFilePath(dir string) string {
	return filepath.Join(dir, "raft.log")
}

func loadLogFile(dir string) (memLog, error) {
	data, err := os.ReadFile(logFilePath(dir))
	if os.IsNotExist(err) {
		return memLog{log: map[uint64]*LogEntry{}}, nil
	}
	if err != nil {
		return memLog{}, err
	}
	var onDisk onDiskLog
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return memLog{}, err
	}
	if onDisk.Entries == nil {
		onDisk.Entries = map[uint64]*LogEntry{}
	}
	return memLog{firstIndex: onDisk.FirstIndex, lastIndex: onDisk.LastIndex, log: onDisk.Entries}, nil
}

func newFileLogStore(dir string) (*fileLogStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	initial, err := loadLogFile(dir)
	if err != nil {
		return nil, err
	}
	return &fileLogStore{path: logFilePath(dir), log: NewLockItem(initial)}, nil
}

func (f *fileLogStore) persist(l memLog) error {
	data, err := json.Marshal(onDiskLog{FirstIndex: l.firstIndex, LastIndex: l.lastIndex, Entries: l.log})
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *fileLogStore) FirstIndex() (uint64, error) {
	var idx uint64
	f.log.Action(func(t *memLog) { idx = t.firstIndex })
	return idx, nil
}

func (f *fileLogStore) LastIndex() (uint64, error) {
	var idx uint64
	f.log.Action(func(t *memLog) { idx = t.lastIndex })
	return idx, nil
}

func (f *fileLogStore) GetLog(index uint64) (log *LogEntry, err error) {
	f.log.Action(func(t *memLog) {
		l, ok := t.log[index]
		if ok {
			log = deepcopy.Copy(l).(*LogEntry)
		} else {
			err = errNotExist
		}
	})
	return
}

func (f *fileLogStore) GetLogRange(from, to uint64) (logs []*LogEntry, err error) {
	f.log.Action(func(t *memLog) {
		for i := from; i <= to; i++ {
			l, ok := t.log[i]
			if !ok {
				continue
			}
			logs = append(logs, deepcopy.Copy(l).(*LogEntry))
		}
	})
	return
}

func (f *fileLogStore) SetLogs(logs []*LogEntry) (err error) {
	f.log.Action(func(t *memLog) {
		for _, entry := range logs {
			t.log[entry.Index] = deepcopy.Copy(entry).(*LogEntry)
			if t.firstIndex == 0 {
				t.firstIndex = entry.Index
			}
			if entry.Index > t.lastIndex {
				t.lastIndex = entry.Index
			}
		}
		err = f.persist(*t)
	})
	return
}

func (f *fileLogStore) DeleteRange(min, max uint64) (err error) {
	f.log.Action(func(t *memLog) {
		for i := min; i <= max; i++ {
			delete(t.log, i)
		}
		if min <= t.firstIndex {
			t.firstIndex = max + 1
		}
		if max >= t.lastIndex {
			t.lastIndex = min - 1
		}
		if t.firstIndex > t.lastIndex {
			t.firstIndex = 0
			t.lastIndex = 0
		}
		err = f.persist(*t)
	})
	return
}
