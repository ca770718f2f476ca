package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/weisyn/chainmeta/internal/testutil/fakenode"
	"github.com/weisyn/chainmeta/pkg/types"
)

const chainRequest = `{"jsonrpc":"2.0","id":1,"method":"system_chain","params":[]}`

// timeoutErr 模拟网络超时
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// fakeConn 可编排的内存连接
type fakeConn struct {
	respond  func(req []byte, deadline time.Time) ([]byte, error)
	closeErr error

	mu       sync.Mutex
	last     []byte
	closed   int
	inflight int32
	peak     int32
}

func (c *fakeConn) WriteMessage(data []byte, deadline time.Time) error {
	n := atomic.AddInt32(&c.inflight, 1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if n <= p || atomic.CompareAndSwapInt32(&c.peak, p, n) {
			break
		}
	}
	c.mu.Lock()
	c.last = append([]byte(nil), data...)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) ReadMessage(deadline time.Time) ([]byte, error) {
	defer atomic.AddInt32(&c.inflight, -1)
	c.mu.Lock()
	req := c.last
	c.mu.Unlock()
	if c.respond == nil {
		return req, nil
	}
	return c.respond(req, deadline)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return c.closeErr
}

func (c *fakeConn) RemoteAddr() string { return "fake" }

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// countingDialer 记录拨号次数
type countingDialer struct {
	conn  *fakeConn
	err   error
	dials int32
}

func (d *countingDialer) Dial(ctx context.Context, ep Endpoint) (Conn, error) {
	atomic.AddInt32(&d.dials, 1)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func mustEndpoint(t *testing.T, raw string) Endpoint {
	t.Helper()
	ep, err := ParseEndpoint(raw)
	require.NoError(t, err)
	return ep
}

func recordStates(t *testing.T, s *Session) func() []types.ConnectionState {
	t.Helper()
	var (
		mu     sync.Mutex
		states []types.ConnectionState
	)
	require.NoError(t, s.OnStateChange(func(ev types.StateChange) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, ev.To)
	}))
	return func() []types.ConnectionState {
		mu.Lock()
		defer mu.Unlock()
		return append([]types.ConnectionState(nil), states...)
	}
}

func TestSessionRequestBeforeConnect(t *testing.T) {
	dialer := &countingDialer{conn: &fakeConn{}}
	s := NewSession(WithDialer(dialer))

	assert.Equal(t, types.StateDisconnected, s.State())

	_, err := s.Request(context.Background(), []byte(chainRequest))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotConnected))
	assert.Equal(t, int32(0), atomic.LoadInt32(&dialer.dials))
}

func TestSessionConnectIdempotent(t *testing.T) {
	dialer := &countingDialer{conn: &fakeConn{}}
	s := NewSession(WithDialer(dialer))
	ep := mustEndpoint(t, "ws://127.0.0.1:9944")

	h1, err := s.Connect(context.Background(), ep)
	require.NoError(t, err)
	assert.Equal(t, types.StateConnected, h1.State)
	assert.NotEqual(t, uuid.Nil, h1.ID)
	assert.Equal(t, "ws://127.0.0.1:9944", h1.Endpoint)

	h2, err := s.Connect(context.Background(), ep)
	require.NoError(t, err)
	assert.Equal(t, h1.ID, h2.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dialer.dials))
}

func TestSessionReconnectProducesNewHandle(t *testing.T) {
	conn := &fakeConn{}
	s := NewSession(WithDialer(&countingDialer{conn: conn}))
	ep := mustEndpoint(t, "ws://127.0.0.1:9944")

	h1, err := s.Connect(context.Background(), ep)
	require.NoError(t, err)

	s.Disconnect()
	assert.Equal(t, types.StateDisconnected, s.State())
	assert.Equal(t, 1, conn.closeCount())

	h2, err := s.Connect(context.Background(), ep)
	require.NoError(t, err)
	assert.NotEqual(t, h1.ID, h2.ID)
}

func TestSessionDisconnectNeverFails(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	conn := &fakeConn{closeErr: errors.New("close boom")}
	s := NewSession(WithDialer(&countingDialer{conn: conn}), WithLogger(zap.New(core)))

	// 未连接时断开是空操作
	s.Disconnect()
	assert.Equal(t, types.StateDisconnected, s.State())

	_, err := s.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
	require.NoError(t, err)

	s.Disconnect()
	s.Disconnect()
	assert.Equal(t, types.StateDisconnected, s.State())
	assert.Equal(t, 1, logs.FilterMessage("Failed to close node connection").Len())
}

func TestSessionConnectFailureClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, types.ReasonRefused},
		{"timeout", timeoutErr{}, types.ReasonTimeout},
		{"context deadline", context.DeadlineExceeded, types.ReasonTimeout},
		{"unresolvable", &net.DNSError{Err: "no such host", Name: "node.invalid", IsNotFound: true}, types.ReasonUnresolvable},
		{"handshake", websocket.ErrBadHandshake, types.ReasonHandshake},
		{"other", errors.New("network is unreachable"), types.ReasonUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(WithDialer(&countingDialer{err: tt.err}))
			states := recordStates(t, s)

			h, err := s.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
			require.Error(t, err)

			var ne *types.NodeError
			require.ErrorAs(t, err, &ne)
			assert.Equal(t, types.ConnectionError, ne.Type)
			assert.Equal(t, tt.reason, ne.Reason)
			assert.ErrorIs(t, err, tt.err)

			assert.Equal(t, types.StateDisconnected, s.State())
			assert.Equal(t, types.StateDisconnected, h.State)
			assert.NotNil(t, h.LastError)
			assert.Equal(t, []types.ConnectionState{types.StateConnecting, types.StateDisconnected}, states())
		})
	}
}

func TestSessionTimeoutDisconnects(t *testing.T) {
	conn := &fakeConn{
		respond: func(req []byte, deadline time.Time) ([]byte, error) {
			time.Sleep(time.Until(deadline))
			return nil, timeoutErr{}
		},
	}
	s := NewSession(WithDialer(&countingDialer{conn: conn}), WithRequestTimeout(20*time.Millisecond))
	states := recordStates(t, s)

	_, err := s.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
	require.NoError(t, err)

	start := time.Now()
	_, err = s.Request(context.Background(), []byte(chainRequest))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTimeout), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, types.StateDisconnected, s.State())
	assert.Equal(t, 1, conn.closeCount())
	assert.Equal(t, []types.ConnectionState{
		types.StateConnecting,
		types.StateConnected,
		types.StateFailed,
		types.StateDisconnected,
	}, states())

	_, err = s.Request(context.Background(), []byte(chainRequest))
	assert.True(t, errors.Is(err, types.ErrNotConnected), "got %v", err)
}

func TestSessionContextDeadlineShortensTimeout(t *testing.T) {
	var seen time.Time
	conn := &fakeConn{
		respond: func(req []byte, deadline time.Time) ([]byte, error) {
			seen = deadline
			return req, nil
		},
	}
	s := NewSession(WithDialer(&countingDialer{conn: conn}), WithRequestTimeout(time.Hour))
	_, err := s.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	_, err = s.Request(ctx, []byte(chainRequest))
	require.NoError(t, err)

	d, _ := ctx.Deadline()
	assert.Equal(t, d, seen)
}

func TestSessionExpiredContext(t *testing.T) {
	s := NewSession(WithDialer(&countingDialer{conn: &fakeConn{}}))
	_, err := s.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	_, err = s.Request(ctx, []byte(chainRequest))
	assert.True(t, errors.Is(err, types.ErrTimeout), "got %v", err)

	// 尚未发出任何数据，会话保持可用
	assert.Equal(t, types.StateConnected, s.State())
}

func TestSessionCanceledContext(t *testing.T) {
	conn := &fakeConn{}
	s := NewSession(WithDialer(&countingDialer{conn: conn}))
	_, err := s.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
	require.NoError(t, err)
	states := recordStates(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Request(ctx, []byte(chainRequest))
	require.Error(t, err)

	var ne *types.NodeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, types.TransportError, ne.Type)
	assert.Equal(t, types.ReasonCanceled, ne.Reason)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, types.StateConnected, s.State())
	assert.Empty(t, states())
	assert.Zero(t, conn.closeCount())
}

func TestSessionRequestTimeoutOption(t *testing.T) {
	assert.Equal(t, 5*time.Second, NewSession(WithRequestTimeout(5*time.Second)).RequestTimeout())
	assert.Positive(t, NewSession().RequestTimeout())
}

func TestSessionTransportError(t *testing.T) {
	conn := &fakeConn{
		respond: func(req []byte, deadline time.Time) ([]byte, error) {
			return nil, errors.New("connection reset by peer")
		},
	}
	s := NewSession(WithDialer(&countingDialer{conn: conn}))
	_, err := s.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
	require.NoError(t, err)

	_, err = s.Request(context.Background(), []byte(chainRequest))
	assert.True(t, errors.Is(err, types.ErrTransport), "got %v", err)
	assert.Equal(t, types.StateDisconnected, s.State())

	h := s.Handle()
	assert.Equal(t, types.StateDisconnected, h.State)
	assert.Error(t, h.LastError)
}

func TestSessionSerializesRequests(t *testing.T) {
	conn := &fakeConn{
		respond: func(req []byte, deadline time.Time) ([]byte, error) {
			time.Sleep(time.Millisecond)
			return req, nil
		},
	}
	s := NewSession(WithDialer(&countingDialer{conn: conn}))
	_, err := s.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Request(context.Background(), []byte(chainRequest))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&conn.peak))
}

func TestSessionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	conn := &fakeConn{}
	s := NewSession(WithDialer(&countingDialer{conn: conn}), WithRegisterer(reg))

	_, err := s.Request(context.Background(), []byte(chainRequest))
	require.Error(t, err)

	_, err = s.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = s.Request(context.Background(), []byte(chainRequest))
		require.NoError(t, err)
	}

	assert.Equal(t, float64(3), testutil.ToFloat64(s.metrics.requests.WithLabelValues(outcomeOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.requests.WithLabelValues(outcomeNotConnected)))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.connects.WithLabelValues(outcomeOK)))

	// 同一注册表上的第二个会话复用已注册的采集器
	s2 := NewSession(WithDialer(&countingDialer{conn: &fakeConn{}}), WithRegisterer(reg))
	_, err = s2.Connect(context.Background(), mustEndpoint(t, "ws://127.0.0.1:9944"))
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(s.metrics.connects.WithLabelValues(outcomeOK)))
}

func TestSessionOverWebSocket(t *testing.T) {
	node := fakenode.NewPolkadot(nil)
	defer node.Close()

	s := NewSession(WithRequestTimeout(2 * time.Second))
	ep := mustEndpoint(t, node.URL())

	_, err := s.Connect(context.Background(), ep)
	require.NoError(t, err)
	defer s.Disconnect()

	_, err = s.Connect(context.Background(), ep)
	require.NoError(t, err)
	assert.Equal(t, 1, node.Accepted())

	resp, err := s.Request(context.Background(), []byte(chainRequest))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":"Polkadot"}`, string(resp))
	assert.Equal(t, []string{"system_chain"}, node.Calls())
}

func TestSessionOverWebSocketTimeout(t *testing.T) {
	node := fakenode.NewPolkadot(nil)
	defer node.Close()
	node.Delay("system_chain", 300*time.Millisecond)

	s := NewSession(WithRequestTimeout(50 * time.Millisecond))
	_, err := s.Connect(context.Background(), mustEndpoint(t, node.URL()))
	require.NoError(t, err)

	_, err = s.Request(context.Background(), []byte(chainRequest))
	assert.True(t, errors.Is(err, types.ErrTimeout), "got %v", err)
	assert.Equal(t, types.StateDisconnected, s.State())
}

func TestSessionOverWebSocketDrop(t *testing.T) {
	node := fakenode.NewPolkadot(nil)
	defer node.Close()
	node.Drop("system_chain")

	s := NewSession(WithRequestTimeout(2 * time.Second))
	_, err := s.Connect(context.Background(), mustEndpoint(t, node.URL()))
	require.NoError(t, err)

	_, err = s.Request(context.Background(), []byte(chainRequest))
	assert.True(t, errors.Is(err, types.ErrTransport), "got %v", err)
	assert.Equal(t, types.StateDisconnected, s.State())
}

func TestSessionConnectRefused(t *testing.T) {
	node := fakenode.New(nil)
	url := node.URL()
	node.Close()

	s := NewSession(WithDialTimeout(2 * time.Second))
	_, err := s.Connect(context.Background(), mustEndpoint(t, url))
	require.Error(t, err)
	assert.True(t, types.IsType(err, types.ConnectionError))
	assert.Equal(t, types.StateDisconnected, s.State())
}
