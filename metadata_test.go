package raft

import (
	"os"
	"testing"
)

func TestMemMetadataStore(t *testing.T) {
	store := newMemMetadataStore()
	if got := store.Get(); got.CurrentTerm != 0 || got.VotedFor != NoneServerID {
		t.Fatalf("unexpected initial metadata: %+v", got)
	}
	store.UpdateCurrentTerm(5)
	store.UpdateVotedFor("node-1")
	got := store.Get()
	if got.CurrentTerm != 5 || got.VotedFor != "node-1" {
		t.Fatalf("unexpected metadata after update: %+v", got)
	}
	if err := store.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestFileMetadataStoreSyncAndReload(t *testing.T) {
	dir := t.TempDir()

	store, err := newFileMetadataStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	store.UpdateCurrentTerm(3)
	store.UpdateVotedFor("node-a")
	if err := store.Sync(); err != nil {
		t.Fatal(err)
	}
	if got := store.Get(); got.CurrentTerm != 3 || got.VotedFor != "node-a" {
		t.Fatalf("unexpected metadata before reload: %+v", got)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := newFileMetadataStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got := reopened.Get()
	if got.CurrentTerm != 3 || got.VotedFor != "node-a" {
		t.Fatalf("metadata did not survive restart: %+v", got)
	}
}

func TestFileMetadataStoreSkipsFlushWhenClean(t *testing.T) {
	dir := t.TempDir()

	store, err := newFileMetadataStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	// Sync with no pending updates must not error and must be idempotent.
	if err := store.Sync(); err != nil {
		t.Fatal(err)
	}
	if err := store.Sync(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(metadataFilePath(dir)); !os.IsNotExist(err) {
		t.Fatalf("clean store must not write metadata file, stat err = %v", err)
	}
}
