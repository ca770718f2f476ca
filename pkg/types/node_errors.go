package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType 客户端错误类型
type ErrorType string

const (
	// ConnectionError 无法建立传输连接
	ConnectionError ErrorType = "connection"
	// NotConnectedError 操作要求已连接状态
	NotConnectedError ErrorType = "not_connected"
	// TransportError 会话中途 I/O 失败
	TransportError ErrorType = "transport"
	// TimeoutError 截止时间内未收到响应
	TimeoutError ErrorType = "timeout"
	// EncodingError 请求无法序列化
	EncodingError ErrorType = "encoding"
	// DecodingError 响应数据格式错误
	DecodingError ErrorType = "decoding"
	// ProtocolError 节点响应成功但语义不完整
	ProtocolError ErrorType = "protocol"
)

// 失败原因
const (
	ReasonInvalidEndpoint = "invalid_endpoint"
	ReasonRefused         = "refused"
	ReasonTimeout         = "timeout"
	ReasonUnresolvable    = "unresolvable"
	ReasonHandshake       = "handshake"
	ReasonUnreachable     = "unreachable"

	// ReasonCanceled 请求在发送前被取消，会话不受影响
	ReasonCanceled = "canceled"
)

// 按类型匹配的哨兵错误，配合 errors.Is 使用
var (
	ErrConnection   = &NodeError{Type: ConnectionError}
	ErrNotConnected = &NodeError{Type: NotConnectedError}
	ErrTransport    = &NodeError{Type: TransportError}
	ErrTimeout      = &NodeError{Type: TimeoutError}
	ErrEncoding     = &NodeError{Type: EncodingError}
	ErrDecoding     = &NodeError{Type: DecodingError}
	ErrProtocol     = &NodeError{Type: ProtocolError}
)

// NodeError 节点客户端错误
type NodeError struct {
	Type    ErrorType // 错误类型
	Op      string    // 调用（RPC 方法或会话操作）
	Field   string    // 出错字段
	Reason  string    // 失败原因
	Code    int       // 节点返回的 JSON-RPC 错误码
	Message string    // 错误消息
	Cause   error     // 原始错误
}

// NewError 创建错误
func NewError(t ErrorType, msg string, cause error) *NodeError {
	return &NodeError{Type: t, Message: msg, Cause: cause}
}

// Errorf 按格式创建错误
func Errorf(t ErrorType, format string, args ...interface{}) *NodeError {
	return &NodeError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Error 实现 error 接口
func (e *NodeError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Type))
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Field != "" {
		b.WriteString(" field=")
		b.WriteString(e.Field)
	}
	if e.Reason != "" {
		b.WriteString(" reason=")
		b.WriteString(e.Reason)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " code=%d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap 支持错误链
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// Is 同类型即匹配，哨兵错误据此工作
func (e *NodeError) Is(target error) bool {
	t, ok := target.(*NodeError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// WithOp 返回附带调用信息的副本
func (e *NodeError) WithOp(op string) *NodeError {
	c := *e
	if c.Op == "" {
		c.Op = op
	} else if op != "" && c.Op != op {
		c.Op = op + "/" + c.Op
	}
	return &c
}

// WithField 返回附带字段信息的副本
func (e *NodeError) WithField(field string) *NodeError {
	c := *e
	c.Field = field
	return &c
}

// IsType 判断错误链中是否有指定类型的 NodeError
func IsType(err error, t ErrorType) bool {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.Type == t
	}
	return false
}

// TypeOf 返回错误类型，非 NodeError 时为空
func TypeOf(err error) ErrorType {
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.Type
	}
	return ""
}
