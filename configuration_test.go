package raft

import "testing"

func serverSet(ids ...ServerID) []ServerInfo {
	out := make([]ServerInfo, len(ids))
	for i, id := range ids {
		out[i] = ServerInfo{ID: id, Addr: ServerAddr(id), Suffrage: Voter}
	}
	return out
}

func TestConfigurationStartAndFinalizeTransition(t *testing.T) {
	stable := Configuration{Servers: serverSet("a", "b", "c")}
	if stable.IsJoint() {
		t.Fatal("stable configuration must not report joint")
	}

	joint := stable.StartTransition(serverSet("a", "b", "d"))
	if !joint.IsJoint() {
		t.Fatal("expected joint configuration after StartTransition")
	}
	if len(joint.Servers) != 3 || len(joint.NewServers) != 3 {
		t.Fatalf("unexpected joint halves: %+v", joint)
	}

	finalized := joint.FinalizeTransition()
	if finalized.IsJoint() {
		t.Fatal("finalized configuration must not be joint")
	}
	if len(finalized.Servers) != 3 || finalized.Servers[2].ID != "d" {
		t.Fatalf("finalized configuration should equal C_new: %+v", finalized)
	}

	// Finalizing an already-stable configuration is a no-op.
	if again := finalized.FinalizeTransition(); !equalServerIDs(again.Servers, finalized.Servers) {
		t.Fatalf("finalizing a stable configuration must be idempotent: %+v", again)
	}
}

func equalServerIDs(a, b []ServerInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func TestConfigurationQuorumUnderJoint(t *testing.T) {
	joint := Configuration{
		Servers:    serverSet("a", "b", "c"),
		NewServers: serverSet("a", "b", "d", "e"),
	}

	match := map[ServerID]uint64{"a": 10, "b": 10, "c": 5, "d": 10, "e": 3}
	// C_old majority (a,b,c) needs 2 of 3 -> 10; C_new majority (a,b,d,e) needs 3 of 4 -> 10.
	if idx := joint.QuorumCommitIndex(match); idx != 10 {
		t.Fatalf("QuorumCommitIndex = %d, want 10", idx)
	}

	granted := map[ServerID]bool{"a": true, "b": true, "c": false, "d": false, "e": false}
	if joint.VoteQuorum(granted) {
		t.Fatal("expected VoteQuorum to fail without a majority of C_new")
	}
	granted["d"] = true
	if !joint.VoteQuorum(granted) {
		t.Fatal("expected VoteQuorum to succeed with a majority of both halves")
	}
}

func TestConfigurationStateFor(t *testing.T) {
	joint := Configuration{
		Servers:    serverSet("a", "b"),
		NewServers: serverSet("b", "c"),
	}
	cases := map[ServerID]ConfigState{
		"a": OldOnly,
		"b": Both,
		"c": NewOnly,
		"z": NotInConfig,
	}
	for id, want := range cases {
		if got := joint.StateFor(id); got != want {
			t.Fatalf("StateFor(%s) = %v, want %v", id, got, want)
		}
	}
}

func TestClacNewConfigurationSetServers(t *testing.T) {
	current := Configuration{Servers: serverSet("a", "b", "c")}
	req := configurationChangeRequest{
		command: setServers,
		servers: serverSet("a", "d"),
	}
	next, err := clacNewConfiguration(current, 5, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(next.Servers) != 2 || next.Servers[0].ID != "a" || next.Servers[1].ID != "d" {
		t.Fatalf("unexpected result configuration: %+v", next)
	}
	// The target half is stable on its own; joining it with the caller's
	// current configuration is what appendConfigurationEntry does via
	// StartTransition.
	if next.IsJoint() {
		t.Fatal("clacNewConfiguration must not itself produce a joint result")
	}
}

func TestClacNewConfigurationRejectsStalePrevIndex(t *testing.T) {
	current := Configuration{Servers: serverSet("a", "b")}
	req := configurationChangeRequest{
		command:   setServers,
		servers:   serverSet("a", "b", "c"),
		pervIndex: 4,
	}
	if _, err := clacNewConfiguration(current, 5, req); err == nil {
		t.Fatal("expected a stale prevIndex to be rejected")
	}
}

func TestCanVoteChecksBothHalvesOfJointConfiguration(t *testing.T) {
	joint := Configuration{
		Servers:    serverSet("a", "b"),
		NewServers: serverSet("a", "c"),
	}
	if !canVote(joint, "c") {
		t.Fatal("a server present only in C_new should already be able to vote")
	}
	if canVote(joint, "z") {
		t.Fatal("a server absent from both halves must not be able to vote")
	}
}
