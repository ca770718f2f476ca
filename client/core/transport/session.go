package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/weisyn/chainmeta/pkg/types"
)

const (
	// DefaultRequestTimeout 默认请求超时
	DefaultRequestTimeout = 30 * time.Second
	// DefaultDialTimeout 默认拨号超时
	DefaultDialTimeout = 10 * time.Second

	stateTopic = "transport:state"
)

// Session 到单个节点端点的传输会话
//
// 状态机：Disconnected -> Connecting -> Connected -> Disconnected，
// 传输出错或超时时 Connected -> Failed -> Disconnected。
//
// 锁的分工：
//   - opMu 串行化 Connect/Disconnect
//   - reqMu 保证每条物理连接至多一个在途请求
//   - mu 保护状态字段，只在短临界区持有，Disconnect 因此可以打断在途请求
type Session struct {
	dialer         Dialer
	logger         *zap.Logger
	requestTimeout time.Duration
	dialTimeout    time.Duration
	metrics        *sessionMetrics
	bus            evbus.Bus

	opMu  sync.Mutex
	reqMu sync.Mutex

	mu      sync.Mutex
	state   types.ConnectionState
	conn    Conn
	handle  types.ConnectionHandle
	pending []types.StateChange
}

// Option 会话选项
type Option func(*sessionOptions)

type sessionOptions struct {
	dialer         Dialer
	logger         *zap.Logger
	requestTimeout time.Duration
	dialTimeout    time.Duration
	registerer     prometheus.Registerer
}

// WithDialer 指定拨号器（默认 WSDialer）
func WithDialer(d Dialer) Option {
	return func(o *sessionOptions) { o.dialer = d }
}

// WithLogger 指定日志记录器
func WithLogger(l *zap.Logger) Option {
	return func(o *sessionOptions) { o.logger = l }
}

// WithRequestTimeout 指定请求超时
func WithRequestTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.requestTimeout = d }
}

// WithDialTimeout 指定拨号超时
func WithDialTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.dialTimeout = d }
}

// WithRegisterer 指定 Prometheus 注册表
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *sessionOptions) { o.registerer = reg }
}

// NewSession 创建会话，初始状态 Disconnected，不进行任何 I/O
func NewSession(opts ...Option) *Session {
	o := &sessionOptions{
		requestTimeout: DefaultRequestTimeout,
		dialTimeout:    DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.dialer == nil {
		o.dialer = &WSDialer{HandshakeTimeout: o.dialTimeout, Logger: o.logger}
	}
	if o.requestTimeout <= 0 {
		o.requestTimeout = DefaultRequestTimeout
	}
	if o.dialTimeout <= 0 {
		o.dialTimeout = DefaultDialTimeout
	}

	return &Session{
		dialer:         o.dialer,
		logger:         o.logger,
		requestTimeout: o.requestTimeout,
		dialTimeout:    o.dialTimeout,
		metrics:        newSessionMetrics(o.registerer),
		bus:            evbus.New(),
		state:          types.StateDisconnected,
		handle:         types.ConnectionHandle{State: types.StateDisconnected},
	}
}

// State 当前状态
func (s *Session) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Handle 当前连接快照
func (s *Session) Handle() types.ConnectionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// RequestTimeout 请求超时配置
func (s *Session) RequestTimeout() time.Duration {
	return s.requestTimeout
}

// OnStateChange 订阅状态迁移事件
//
// 回调在触发迁移的调用方 goroutine 中、会话内部锁释放之后同步执行。
func (s *Session) OnStateChange(fn func(types.StateChange)) error {
	return s.bus.Subscribe(stateTopic, fn)
}

// Connect 建立连接
//
// 已连接时直接返回现有连接快照，不会重新拨号。拨号失败返回 ConnectionError，
// 会话回到 Disconnected。
func (s *Session) Connect(ctx context.Context, ep Endpoint) (types.ConnectionHandle, error) {
	defer s.flushEvents()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state == types.StateConnected {
		h := s.handle
		s.mu.Unlock()
		return h, nil
	}
	s.handle = types.ConnectionHandle{Endpoint: ep.String()}
	s.transition(types.StateConnecting, nil)
	s.mu.Unlock()

	s.logger.Debug("Connecting to node", zap.String("endpoint", ep.String()))

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	conn, err := s.dialer.Dial(dialCtx, ep)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		ne := classifyDialError(ep, err)
		s.transition(types.StateDisconnected, ne)
		s.metrics.observeConnect(ne.Reason)
		s.logger.Warn("Failed to connect to node",
			zap.String("endpoint", ep.String()),
			zap.String("reason", ne.Reason),
			zap.Error(err))
		return s.handle, ne
	}

	s.conn = conn
	s.handle.ID = uuid.New()
	s.handle.ConnectedAt = time.Now()
	s.handle.LastError = nil
	s.transition(types.StateConnected, nil)
	s.metrics.observeConnect(outcomeOK)

	s.logger.Info("Connected to node",
		zap.String("endpoint", ep.String()),
		zap.String("remote_addr", conn.RemoteAddr()),
		zap.String("handle", s.handle.ID.String()))

	return s.handle, nil
}

// Disconnect 断开连接；任何状态下都以 Disconnected 结束，关闭错误只记录日志
func (s *Session) Disconnect() {
	defer s.flushEvents()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	if s.state != types.StateDisconnected {
		s.transition(types.StateDisconnected, nil)
	}
	handleID := s.handle.ID
	s.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		s.logger.Warn("Failed to close node connection", zap.Error(err))
	}
	s.logger.Info("Disconnected from node", zap.String("handle", handleID.String()))
}

// Request 发送一条请求并等待其响应
//
// 截止时间取请求超时与 ctx 截止时间中较早者；ctx 的取消不会打断在途请求。
// 超时返回 TimeoutError，其他 I/O 错误返回 TransportError，两者都会使会话
// 经 Failed 进入 Disconnected 并关闭连接。发送前 ctx 已取消时返回 Reason 为
// canceled 的 TransportError，会话保持 Connected。
func (s *Session) Request(ctx context.Context, payload []byte) ([]byte, error) {
	defer s.flushEvents()

	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()

	if state != types.StateConnected || conn == nil {
		s.metrics.observeRequest(outcomeNotConnected, 0)
		return nil, types.Errorf(types.NotConnectedError, "session is %s", state)
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, types.NewError(types.TimeoutError, "deadline exceeded before request", err)
		}
		ne := types.NewError(types.TransportError, "request canceled before send, session unchanged", err)
		ne.Reason = types.ReasonCanceled
		return nil, ne
	}

	deadline := time.Now().Add(s.requestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	if err := conn.WriteMessage(payload, deadline); err != nil {
		return nil, s.fail(conn, "write", err, start)
	}
	resp, err := conn.ReadMessage(deadline)
	if err != nil {
		return nil, s.fail(conn, "read", err, start)
	}

	s.metrics.observeRequest(outcomeOK, time.Since(start))
	return resp, nil
}

// fail 处理请求 I/O 失败：Connected -> Failed -> Disconnected
func (s *Session) fail(conn Conn, op string, cause error, start time.Time) error {
	kind := types.TransportError
	outcome := outcomeTransport
	if isTimeout(cause) {
		kind = types.TimeoutError
		outcome = outcomeTimeout
	}
	ne := types.NewError(kind, op+" failed", cause)

	s.mu.Lock()
	owned := s.conn == conn
	if owned {
		s.conn = nil
		s.transition(types.StateFailed, ne)
		s.transition(types.StateDisconnected, ne)
	}
	s.mu.Unlock()

	if owned {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Failed to close broken connection", zap.Error(err))
		}
	}

	s.metrics.observeRequest(outcome, time.Since(start))
	s.logger.Warn("Node request failed",
		zap.String("op", op),
		zap.String("kind", string(kind)),
		zap.Error(cause))
	return ne
}

// transition 记录状态迁移，调用方须持有 mu
func (s *Session) transition(to types.ConnectionState, err error) {
	from := s.state
	s.state = to
	s.handle.State = to
	if err != nil {
		s.handle.LastError = err
	}
	s.pending = append(s.pending, types.StateChange{
		HandleID: s.handle.ID,
		From:     from,
		To:       to,
		Err:      err,
		At:       time.Now(),
	})
}

// flushEvents 在锁释放后发布积累的状态事件
func (s *Session) flushEvents() {
	s.mu.Lock()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, ev := range events {
		s.bus.Publish(stateTopic, ev)
	}
}
