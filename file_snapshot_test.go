package raft

import (
	"io"
	"testing"
)

func TestFileSnapshotStoreCreateOpenList(t *testing.T) {
	dir := t.TempDir()

	store, err := newFileSnapshotStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	sink, err := store.Create(SnapShotVersionMin, 10, 2, Configuration{}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sink.Write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	meta, rc, err := store.Open(sink.ID())
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Fatalf("payload = %q", data)
	}
	if meta.Index != 10 || meta.Term != 2 {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	list, err := store.List()
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %+v, err = %v", list, err)
	}
}

func TestFileSnapshotStoreChunkedInstall(t *testing.T) {
	dir := t.TempDir()

	store, err := newFileSnapshotStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	config := Configuration{Servers: []ServerInfo{{ID: "n1", Addr: "a1"}}}
	handle, err := store.BeginInstall(20, 3, config, 20)
	if err != nil {
		t.Fatal(err)
	}

	metaChunk := []byte(`{"Index":20,"Term":3}`)
	if err := store.WriteChunk(handle.ID, SnapshotDataMetadata, 0, metaChunk, true); err != nil {
		t.Fatal(err)
	}

	payload := []byte("chunk-one-chunk-two")
	if err := store.WriteChunk(handle.ID, SnapshotDataPayload, 0, payload[:10], false); err != nil {
		t.Fatal(err)
	}
	if err := store.WriteChunk(handle.ID, SnapshotDataPayload, 10, payload[10:], true); err != nil {
		t.Fatal(err)
	}

	meta, rc, err := store.Open(handle.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
	if meta.Index != 20 || meta.Term != 3 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestFileSnapshotStoreSupersedesOnGreaterIndex(t *testing.T) {
	dir := t.TempDir()

	store, err := newFileSnapshotStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	stale, err := store.BeginInstall(5, 1, Configuration{}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.WriteChunk(stale.ID, SnapshotDataMetadata, 0, []byte("{}"), false); err != nil {
		t.Fatal(err)
	}

	fresh, err := store.BeginInstall(9, 2, Configuration{}, 9)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.ID == stale.ID {
		t.Fatal("expected a distinct install handle for the superseding index")
	}

	// The stale install is no longer addressable once superseded.
	if err := store.WriteChunk(stale.ID, SnapshotDataMetadata, 2, []byte("x"), true); err == nil {
		t.Fatal("expected write against superseded install to fail")
	}

	// A lower index than the in-flight install is rejected outright.
	if _, err := store.BeginInstall(1, 1, Configuration{}, 1); err == nil {
		t.Fatal("expected BeginInstall for a lower index to fail")
	}
}
