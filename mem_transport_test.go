package raft

import (
	"github.com/gookit/goutil/dump"
	"testing"
	"time"
)

func TestMemTransport(t *testing.T) {
	handler := func(rpc RpcInterface) {
		for i := 0; ; i++ {
			select {
			case cmd := <-rpc.Consumer():
				switch req := cmd.Request.(type) {
				case *InstallSnapshotRequest:
					t.Log("chunk", "kind", req.Kind, "offset", req.Offset, "done", req.Done, string(req.Data))
					cmd.Response <- &InstallSnapshotResponse{Success: true}

				case *AppendEntryRequest:
					_ = req
					cmd.Response <- &AppendEntryResponse{
						Term:    uint64(i + 1),
						LastLog: 111,
						Success: true,
					}

				}
			}
		}
	}
	a := newMemRpc()
	b := newMemRpc()
	go handler(a)
	go handler(b)
	a.Connect(b.localAddr, b)
	b.Connect(a.localAddr, a)
	bInfo := &ServerInfo{Addr: b.localAddr}
	//a.VoteRequest(bInfo, &VoteRequest{
	//	RPCHeader: &RPCHeader{
	//		ID:     "",
	//		Addr:   b.localInfo,
	//		ErrMsg: "",
	//	},
	//	term:               1,
	//	LastLogIndex:       1,
	//	LastLogTerm:        1,
	//	LeadershipTransfer: false,
	//})
	appendEntryReq := &AppendEntryRequest{
		RPCHeader:    nil,
		Term:         0,
		LeaderID:     "",
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		Entries: []*LogEntry{
			{
				Term:      1,
				Data:      []byte("12"),
				Index:     3,
				Type:      4,
				CreatedAt: time.Now(),
			},
		},
		LeaderCommit: 0,
	}

	//a.AppendEntries(bInfo, appendEntryReq)
	pipeline, _ := a.AppendEntryPipeline(bInfo)
	go func() {
		for {
			select {
			case af := <-pipeline.Consumer():
				resp, _ := af.Response()
				t.Log(dump.Format(resp))
			}

		}
	}()
	for i := 0; i < 100; i++ {
		_, _ = pipeline.AppendEntries(appendEntryReq)
	}

	a.InstallSnapShot(bInfo, &InstallSnapshotRequest{
		Size: 100,
		Kind: SnapshotDataPayload,
		Data: []byte("123"),
		Done: true,
	})
	time.Sleep(time.Second)

	a.DisconnectAll()

}
