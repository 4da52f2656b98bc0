package raft

import (
	"errors"
	"sync"
	"time"
)

// memRPC is an in-memory RpcInterface used by tests to exercise the
// consensus core without opening real sockets, mirroring net_transport.go's
// interface but wiring peers directly through channels.
type memRPC struct {
	sync.Mutex
	consumerCh chan *CMD
	localAddr  ServerAddr
	peerMap    map[ServerAddr]*memRPC
	timeout    time.Duration
}

type menAppendEntryPipeline struct {
	peer       *memRPC
	self       *memRPC
	consumerCh chan AppendEntriesFuture
	closeCh    chan struct{}
	closeOnce  sync.Once
}

func (m *menAppendEntryPipeline) AppendEntries(request *AppendEntryRequest) (AppendEntriesFuture, error) {
	future := newAppendEntriesFuture(request)
	resp, err := m.self.doRpc(m.peer, request)
	if err != nil {
		future.fail(err)
	} else {
		future.responded(resp, nil)
	}
	select {
	case m.consumerCh <- future:
	case <-m.closeCh:
		return nil, ErrPipelineShutdown
	}
	return future, nil
}

func (m *menAppendEntryPipeline) Consumer() <-chan AppendEntriesFuture {
	return m.consumerCh
}

func (m *menAppendEntryPipeline) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func newMemRpc() *memRPC {
	return &memRPC{
		consumerCh: make(chan *CMD),
		peerMap:    map[ServerAddr]*memRPC{},
		timeout:    time.Second,
		localAddr:  ServerAddr(generateUUID()),
	}
}

func (m *memRPC) getPeer(addr ServerAddr) *memRPC {
	m.Lock()
	defer m.Unlock()
	return m.peerMap[addr]
}

// Connect registers peer as reachable at addr from this transport's side.
func (m *memRPC) Connect(addr ServerAddr, peer *memRPC) {
	m.Lock()
	defer m.Unlock()
	m.peerMap[addr] = peer
}

// Disconnect removes a previously registered peer.
func (m *memRPC) Disconnect(addr ServerAddr) {
	m.Lock()
	defer m.Unlock()
	delete(m.peerMap, addr)
}

// DisconnectAll drops every registered peer.
func (m *memRPC) DisconnectAll() {
	m.Lock()
	defer m.Unlock()
	m.peerMap = map[ServerAddr]*memRPC{}
}

func (m *memRPC) Consumer() <-chan *CMD {
	return m.consumerCh
}

func (m *memRPC) doRpc(peer *memRPC, request interface{}) (interface{}, error) {
	if peer == nil {
		return nil, errors.New("peer not connected")
	}
	cmd := &CMD{
		CmdType:  0,
		Request:  request,
		Response: make(chan interface{}, 1),
	}
	select {
	case peer.consumerCh <- cmd:
	case <-time.After(m.timeout):
		return nil, errors.New("time out")
	}

	select {
	case resp := <-cmd.Response:
		return resp, nil
	case <-time.After(m.timeout):
		return nil, errors.New("time out")
	}
}

func (m *memRPC) VoteRequest(info *ServerInfo, request *VoteRequest) (*VoteResponse, error) {
	resp, err := m.doRpc(m.getPeer(info.Addr), request)
	if err != nil {
		return nil, err
	}
	return resp.(*VoteResponse), nil
}

func (m *memRPC) AppendEntries(info *ServerInfo, request *AppendEntryRequest) (*AppendEntryResponse, error) {
	resp, err := m.doRpc(m.getPeer(info.Addr), request)
	if err != nil {
		return nil, err
	}
	return resp.(*AppendEntryResponse), nil
}

func (m *memRPC) AppendEntryPipeline(info *ServerInfo) (AppendEntryPipeline, error) {
	peer := m.getPeer(info.Addr)
	if peer == nil {
		return nil, errors.New("peer not connected")
	}
	return &menAppendEntryPipeline{
		peer:       peer,
		self:       m,
		consumerCh: make(chan AppendEntriesFuture, 128),
		closeCh:    make(chan struct{}),
	}, nil
}

func (m *memRPC) InstallSnapShot(info *ServerInfo, request *InstallSnapshotRequest) (*InstallSnapshotResponse, error) {
	resp, err := m.doRpc(m.getPeer(info.Addr), request)
	if err != nil {
		return nil, err
	}
	return resp.(*InstallSnapshotResponse), nil
}

func (m *memRPC) FastTimeOut(info *ServerInfo, request *FastTimeOutRequest) (*FastTimeOutResponse, error) {
	resp, err := m.doRpc(m.getPeer(info.Addr), request)
	if err != nil {
		return nil, err
	}
	return resp.(*FastTimeOutResponse), nil
}

func (m *memRPC) LocalAddr() ServerAddr {
	return m.localAddr
}

func (m *memRPC) EncodeAddr(info *ServerInfo) []byte {
	return []byte(info.Addr)
}

func (m *memRPC) DecodeAddr(bytes []byte) ServerAddr {
	return ServerAddr(bytes)
}
