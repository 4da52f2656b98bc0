package raft

import (
	"testing"
)

func TestFileLogStoreSetGetDelete(t *testing.T) {
	dir := t.TempDir()

	store, err := newFileLogStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.SetLogs(buildLog(
		BuildTuple(uint64(1), "1"),
		BuildTuple(uint64(2), "2"),
		BuildTuple(uint64(3), "3"),
	)); err != nil {
		t.Fatal(err)
	}

	first, err := store.FirstIndex()
	if err != nil || first != 1 {
		t.Fatalf("first index = %d, err = %v", first, err)
	}
	last, err := store.LastIndex()
	if err != nil || last != 3 {
		t.Fatalf("last index = %d, err = %v", last, err)
	}

	entry, err := store.GetLog(2)
	if err != nil {
		t.Fatal(err)
	}
	if string(entry.Data) != "2" {
		t.Fatalf("entry data = %s, want 2", entry.Data)
	}

	logs, err := store.GetLogRange(1, 3)
	if err != nil || len(logs) != 3 {
		t.Fatalf("range = %+v, err = %v", logs, err)
	}

	if err := store.DeleteRange(2, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetLog(2); err == nil {
		t.Fatal("expected entry 2 to be deleted")
	}
	if last, _ = store.LastIndex(); last != 1 {
		t.Fatalf("last index after delete = %d, want 1", last)
	}
}

func TestFileLogStoreReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()

	store, err := newFileLogStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetLogs(buildLog(
		BuildTuple(uint64(1), "a"),
		BuildTuple(uint64(2), "b"),
	)); err != nil {
		t.Fatal(err)
	}

	reopened, err := newFileLogStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	last, err := reopened.LastIndex()
	if err != nil || last != 2 {
		t.Fatalf("last index after reload = %d, err = %v", last, err)
	}
	entry, err := reopened.GetLog(1)
	if err != nil || string(entry.Data) != "a" {
		t.Fatalf("entry after reload = %+v, err = %v", entry, err)
	}
}
