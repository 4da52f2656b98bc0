package raft

import (
	"net"
	"testing"
	"time"
)

func newTestNetTransport(t *testing.T) *NetTransport {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	conf := DefaultConfig()
	conf.NetLayer = newTcpLayer(l, nil)
	return NewNetTransport(conf)
}

func TestServerVoteRequest(t *testing.T) {
	trans := newTestNetTransport(t)
	go trans.Start()
	defer trans.Stop()

	go func() {
		cmd := <-trans.Consumer()
		cmd.Response <- &VoteResponse{
			RPCHeader: &RPCHeader{
				ID:   "responder",
				Addr: trans.LocalAddr(),
			},
			Term:        1,
			VoteGranted: true,
		}
	}()

	resp, err := trans.VoteRequest(&ServerInfo{
		ID:   "self",
		Addr: trans.LocalAddr(),
	}, &VoteRequest{
		RPCHeader: &RPCHeader{
			ID:   "candidate",
			Addr: "candidate-addr",
		},
		Term:         1,
		LastLogIndex: 100,
		LastLogTerm:  1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.VoteGranted {
		t.Fatal("expected vote granted")
	}
	time.Sleep(10 * time.Millisecond)
}
