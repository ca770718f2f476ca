// Package transport 管理到单个节点端点的传输会话
//
// 会话负责连接状态机、请求串行化与超时；报文内容由 codec 包处理。
package transport

import (
	"context"
	"time"
)

// Conn 一条已建立的物理连接
//
// 实现无需并发安全，Session 保证同一时刻只有一个请求在使用连接。
type Conn interface {
	// WriteMessage 发送一条完整报文
	WriteMessage(data []byte, deadline time.Time) error

	// ReadMessage 读取下一条完整报文
	ReadMessage(deadline time.Time) ([]byte, error)

	// Close 关闭连接，可重复调用
	Close() error

	// RemoteAddr 对端地址
	RemoteAddr() string
}

// Dialer 建立物理连接
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint) (Conn, error)
}

// DialerFunc 函数形式的 Dialer
type DialerFunc func(ctx context.Context, ep Endpoint) (Conn, error)

// Dial 实现 Dialer
func (f DialerFunc) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	return f(ctx, ep)
}
