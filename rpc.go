package raft

type (
	cmdType uint8
	CMD     struct {
		CmdType  cmdType
		Request  any
		Response chan any
	}
	RpcInterface interface {
		// Consumer 返回一个可消费的 Chan
		Consumer() <-chan *CMD
		// VoteRequest 发起投票请求
		VoteRequest(*ServerInfo, *VoteRequest) (*VoteResponse, error)
		// AppendEntries 追加日志
		AppendEntries(*ServerInfo, *AppendEntryRequest) (*AppendEntryResponse, error)
		// AppendEntryPipeline 以 pipe 形式追加日志
		AppendEntryPipeline(*ServerInfo) (AppendEntryPipeline, error)
		// InstallSnapShot 安装快照，一次调用传输一个 chunk
		InstallSnapShot(*ServerInfo, *InstallSnapshotRequest) (*InstallSnapshotResponse, error)
		// FastTimeOut 快速超时转换为候选人
		FastTimeOut(*ServerInfo, *FastTimeOutRequest) (*FastTimeOutResponse, error)

		LocalAddr() ServerAddr
		EncodeAddr(info *ServerInfo) []byte
		DecodeAddr([]byte) ServerAddr
	}

	AppendEntryPipeline interface {
		AppendEntries(*AppendEntryRequest) (AppendEntriesFuture, error)
		Consumer() <-chan AppendEntriesFuture
		Close() error
	}
)
