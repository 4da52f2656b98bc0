package raft

import (
	"errors"
	"github.com/fuyao-w/deepcopy"
)

type memLog struct {
	firstIndex, lastIndex uint64
	log                   map[uint64]*LogEntry
}

// MemorySore is an in-memory LogStore used for tests and as the default
// when a caller doesn't wire up a data directory.
type MemorySore struct {
	log *LockItem[memLog]
}

func newMemoryStore() MemorySore {
	return MemorySore{
		log: NewLockItem(memLog{
			log: map[uint64]*LogEntry{},
		}),
	}
}

var errNotExist = errors.New("not exist")

func (m *MemorySore) FirstIndex() (uint64, error) {
	var idx uint64
	m.log.Action(func(t *memLog) {
		idx = (*t).firstIndex
	})
	return idx, nil
}

func (m *MemorySore) LastIndex() (uint64, error) {
	var idx uint64
	m.log.Action(func(t *memLog) {
		idx = (*t).lastIndex
	})
	return idx, nil
}

func (m *MemorySore) GetLog(index uint64) (log *LogEntry, err error) {
	m.log.Action(func(t *memLog) {
		s := *t
		l, ok := s.log[index]
		if ok {
			log = deepcopy.Copy(l).(*LogEntry)
		} else {
			err = errNotExist
		}
	})
	return
}

func (m *MemorySore) GetLogRange(from, to uint64) (logs []*LogEntry, err error) {
	m.log.Action(func(t *memLog) {
		s := *t
		for i := from; i <= to; i++ {
			l, ok := s.log[i]
			if !ok {
				continue
			}
			logs = append(logs, deepcopy.Copy(l).(*LogEntry))
		}
	})
	return
}

func (m *MemorySore) SetLogs(logs []*LogEntry) error {
	m.log.Action(func(t *memLog) {
		s := *t
		for _, entry := range logs {
			s.log[entry.Index] = deepcopy.Copy(entry).(*LogEntry)
			if t.firstIndex == 0 {
				t.firstIndex = entry.Index
			}
			if entry.Index > t.lastIndex {
				t.lastIndex = entry.Index
			}
		}
	})
	return nil
}

func (m *MemorySore) DeleteRange(min, max uint64) error {
	m.log.Action(func(t *memLog) {
		s := t
		for i := min; i <= max; i++ {
			delete(s.log, i)
		}
		if min <= s.firstIndex {
			s.firstIndex = max + 1
		}
		if max >= s.lastIndex {
			s.lastIndex = min - 1
		}
		if s.firstIndex > s.lastIndex {
			s.firstIndex = 0
			s.lastIndex = 0
		}
	})
	return nil
}
