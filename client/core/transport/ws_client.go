package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/weisyn/chainmeta/pkg/types"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadLimit        = 16 << 20 // 运行时版本等响应都很小，限制单条报文大小
	closeGracePeriod        = time.Second
)

// WSDialer WebSocket 拨号器
type WSDialer struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
	Header           http.Header
	Logger           *zap.Logger
}

// Dial 建立 WebSocket 连接
func (d *WSDialer) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	handshake := d.HandshakeTimeout
	if handshake == 0 {
		handshake = defaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}

	conn, resp, err := dialer.DialContext(ctx, ep.String(), d.Header)
	// 关闭握手响应体
	if resp != nil && resp.Body != nil {
		if cerr := resp.Body.Close(); cerr != nil && d.Logger != nil {
			d.Logger.Debug("Failed to close WebSocket response body", zap.Error(cerr))
		}
	}
	if err != nil {
		return nil, err
	}

	limit := d.ReadLimit
	if limit == 0 {
		limit = defaultReadLimit
	}
	conn.SetReadLimit(limit)

	return &wsConn{conn: conn}, nil
}

// wsConn 基于 gorilla/websocket 的连接
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteMessage(data []byte, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ReadMessage(deadline time.Time) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	// 尽力发送关闭帧
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// classifyDialError 将拨号错误映射为 ConnectionError 及原因
func classifyDialError(ep Endpoint, err error) *types.NodeError {
	ne := types.NewError(types.ConnectionError, "dial "+ep.String(), err)

	var dnsErr *net.DNSError
	switch {
	case isTimeout(err):
		ne.Reason = types.ReasonTimeout
	case errors.As(err, &dnsErr):
		ne.Reason = types.ReasonUnresolvable
	case errors.Is(err, syscall.ECONNREFUSED):
		ne.Reason = types.ReasonRefused
	case errors.Is(err, websocket.ErrBadHandshake):
		ne.Reason = types.ReasonHandshake
	default:
		ne.Reason = types.ReasonUnreachable
	}
	return ne
}

// isTimeout 判断是否为超时错误
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
