package types

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionState 传输会话状态
type ConnectionState string

const (
	// StateDisconnected 未连接（初始与终止状态）
	StateDisconnected ConnectionState = "disconnected"
	// StateConnecting 正在建立连接
	StateConnecting ConnectionState = "connecting"
	// StateConnected 已连接
	StateConnected ConnectionState = "connected"
	// StateFailed 传输出错，随后立即进入 Disconnected
	StateFailed ConnectionState = "failed"
)

// ConnectionHandle 会话连接快照
//
// 由传输会话创建，调用方拿到的只是副本。每次成功连接产生新的 ID。
type ConnectionHandle struct {
	ID          uuid.UUID       `json:"id"`
	Endpoint    string          `json:"endpoint"`
	State       ConnectionState `json:"state"`
	ConnectedAt time.Time       `json:"connectedAt"`
	LastError   error           `json:"-"`
}

// StateChange 状态迁移事件
type StateChange struct {
	HandleID uuid.UUID
	From     ConnectionState
	To       ConnectionState
	Err      error
	At       time.Time
}
