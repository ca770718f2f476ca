// Package node 提供面向调用方的节点客户端
//
// Client 在传输会话之上完成请求编码、响应配对与结果解码：
//   - Connect / Disconnect 管理到单个节点的连接
//   - GetSystemInfo 汇总链身份与代币配置
//   - GetRuntimeVersion 查询运行时版本及其 API 列表
//
// 所有查询在未连接时返回 NotConnectedError，不产生任何网络 I/O。
package node

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/weisyn/chainmeta/client/core/codec"
	"github.com/weisyn/chainmeta/client/core/transport"
	"github.com/weisyn/chainmeta/pkg/types"
)

// Client 节点客户端，可被多个 goroutine 并发使用
type Client struct {
	endpoint string
	session  *transport.Session
	logger   *zap.Logger
	nextID   atomic.Uint64
}

// Option 客户端选项
type Option func(*options)

type options struct {
	logger  *zap.Logger
	session []transport.Option
}

// WithLogger 指定日志记录器
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRequestTimeout 指定单次请求超时
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.session = append(o.session, transport.WithRequestTimeout(d)) }
}

// WithDialTimeout 指定拨号超时
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.session = append(o.session, transport.WithDialTimeout(d)) }
}

// WithDialer 指定拨号器，测试中用于替换真实网络
func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.session = append(o.session, transport.WithDialer(d)) }
}

// WithRegisterer 指定 Prometheus 注册表
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.session = append(o.session, transport.WithRegisterer(reg)) }
}

// New 创建客户端，不会拨号
func New(endpoint string, opts ...Option) *Client {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	sessionOpts := append([]transport.Option{
		transport.WithLogger(o.logger.With(zap.String("module", "transport"))),
	}, o.session...)

	return &Client{
		endpoint: endpoint,
		session:  transport.NewSession(sessionOpts...),
		logger:   o.logger.With(zap.String("module", "node")),
	}
}

// Endpoint 配置的节点地址
func (c *Client) Endpoint() string {
	return c.endpoint
}

// RequestTimeout 单次请求超时
func (c *Client) RequestTimeout() time.Duration {
	return c.session.RequestTimeout()
}

// State 当前连接状态
func (c *Client) State() types.ConnectionState {
	return c.session.State()
}

// Handle 当前连接快照
func (c *Client) Handle() types.ConnectionHandle {
	return c.session.Handle()
}

// OnStateChange 订阅连接状态迁移
func (c *Client) OnStateChange(fn func(types.StateChange)) error {
	return c.session.OnStateChange(fn)
}

// Connect 连接节点，已连接时直接返回
func (c *Client) Connect(ctx context.Context) error {
	ep, err := transport.ParseEndpoint(c.endpoint)
	if err != nil {
		return withOp(err, "connect")
	}
	if _, err := c.session.Connect(ctx, ep); err != nil {
		return withOp(err, "connect")
	}
	return nil
}

// Disconnect 断开连接，总是成功
func (c *Client) Disconnect() {
	c.session.Disconnect()
}

// GetSystemInfo 查询链身份与代币配置
//
// 先请求 system_properties；节点在其中直接给出 chainId/chainName 时不再
// 单独请求，否则通过 system_chain 与 chain_getBlockHash(0) 获取链名和
// 创世哈希。任一必需字段缺失返回 ProtocolError 并指明字段。
func (c *Client) GetSystemInfo(ctx context.Context) (*types.SystemInfo, error) {
	const op = "getSystemInfo"

	result, err := c.call(ctx, codec.MethodSystemProperties, types.Latest())
	if err != nil {
		return nil, withOp(err, op)
	}
	props, err := codec.DecodeProperties(result)
	if err != nil {
		return nil, withOp(withOp(err, codec.MethodSystemProperties), op)
	}

	info := &types.SystemInfo{SS58Format: props.SS58Format}

	if props.Combined() {
		info.ChainID = *props.ChainID
		info.ChainName = *props.ChainName
	} else {
		if info.ChainName, err = c.fetchString(ctx, codec.MethodSystemChain, types.Latest(), codec.FieldChainName); err != nil {
			return nil, withOp(err, op)
		}
		if info.ChainID, err = c.fetchString(ctx, codec.MethodChainGetBlockHash, types.AtNumber(0), codec.FieldChainID); err != nil {
			return nil, withOp(err, op)
		}
	}

	switch {
	case info.ChainID == "":
		return nil, missingField(codec.MethodSystemProperties, codec.FieldChainID).WithOp(op)
	case info.ChainName == "":
		return nil, missingField(codec.MethodSystemProperties, codec.FieldChainName).WithOp(op)
	case props.TokenDecimals == nil:
		return nil, missingField(codec.MethodSystemProperties, codec.FieldTokenDecimals).WithOp(op)
	case props.TokenSymbol == nil:
		return nil, missingField(codec.MethodSystemProperties, codec.FieldTokenSymbol).WithOp(op)
	}
	info.TokenDecimals = *props.TokenDecimals
	info.TokenSymbol = *props.TokenSymbol

	name, err := c.fetchString(ctx, codec.MethodSystemName, types.Latest(), codec.FieldNodeName)
	switch {
	case err == nil:
		info.NodeName = name
	case types.IsType(err, types.ProtocolError):
		// 节点名不是必需字段，节点不支持该方法时留空
		c.logger.Debug("Node name unavailable", zap.Error(err))
	default:
		return nil, withOp(err, op)
	}

	c.logger.Debug("System info retrieved",
		zap.String("chain", info.ChainName),
		zap.String("chain_id", info.ChainID),
		zap.String("token", info.TokenSymbol),
		zap.Uint32("decimals", info.TokenDecimals))

	return info, nil
}

// GetRuntimeVersion 查询运行时版本
//
// ref 为零值时查询最新区块。按高度查询时先通过 chain_getBlockHash 换算为
// 区块哈希，节点不认识该高度时返回 ProtocolError。格式错误的单个 API 条目
// 会被丢弃并记录告警，不影响调用结果；API 列表为空不是错误。
func (c *Client) GetRuntimeVersion(ctx context.Context, ref types.BlockRef) (*types.RuntimeVersion, error) {
	const op = "getRuntimeVersion"

	if ref.Kind() == types.BlockNumber {
		hash, err := c.resolveBlockHash(ctx, ref.Number())
		if err != nil {
			return nil, withOp(err, op)
		}
		ref = types.AtHash(hash)
	}

	result, err := c.call(ctx, codec.MethodRuntimeVersion, ref)
	if err != nil {
		return nil, withOp(err, op)
	}

	rv, warnings, err := codec.DecodeRuntimeVersion(result)
	if err != nil {
		return nil, withOp(withOp(err, codec.MethodRuntimeVersion), op)
	}
	for _, w := range warnings {
		c.logger.Warn("Dropped malformed runtime api entry",
			zap.Int("index", w.Index),
			zap.String("reason", w.Reason),
			zap.String("raw", w.Raw))
	}

	c.logger.Debug("Runtime version retrieved",
		zap.String("spec_name", rv.SpecName),
		zap.Uint32("spec_version", rv.SpecVersion),
		zap.Stringer("at", ref),
		zap.Int("apis", len(rv.Apis)),
		zap.Int("dropped", len(warnings)))

	return &rv, nil
}

// call 发送一次请求并返回 result 字段
func (c *Client) call(ctx context.Context, method string, ref types.BlockRef) (json.RawMessage, error) {
	id := c.nextID.Add(1)

	payload, err := codec.EncodeRequest(id, method, ref)
	if err != nil {
		return nil, err
	}

	raw, err := c.session.Request(ctx, payload)
	if err != nil {
		return nil, withOp(err, method)
	}

	resp, err := codec.DecodeResponse(raw)
	if resp != nil && resp.ID != id {
		// 请求与响应已无法配对，丢弃连接
		c.session.Disconnect()
		c.logger.Warn("Response id mismatch, connection dropped",
			zap.String("method", method),
			zap.Uint64("want", id),
			zap.Uint64("got", resp.ID))
		return nil, types.Errorf(types.ProtocolError, "response id %d does not match request id %d", resp.ID, id).
			WithOp(method).WithField("id")
	}
	if err != nil {
		return nil, withOp(err, method)
	}

	return resp.Result, nil
}

// resolveBlockHash 将区块高度换算为区块哈希
func (c *Client) resolveBlockHash(ctx context.Context, number uint32) (string, error) {
	const method = codec.MethodChainGetBlockHash

	result, err := c.call(ctx, method, types.AtNumber(number))
	if err != nil {
		return "", err
	}
	if codec.IsNull(result) {
		return "", types.Errorf(types.ProtocolError, "node has no block %d", number).
			WithOp(method).WithField(codec.FieldBlock)
	}
	hash, err := codec.DecodeBlockHash(result)
	if err != nil {
		return "", withOp(withField(err, codec.FieldBlock), method)
	}
	return hash, nil
}

// fetchString 请求一个字符串结果；null 视为字段缺失
func (c *Client) fetchString(ctx context.Context, method string, ref types.BlockRef, field string) (string, error) {
	result, err := c.call(ctx, method, ref)
	if err != nil {
		return "", err
	}
	if codec.IsNull(result) {
		return "", missingField(method, field)
	}
	s, err := codec.DecodeString(result)
	if err != nil {
		return "", withOp(withField(err, field), method)
	}
	if s == "" {
		return "", missingField(method, field)
	}
	return s, nil
}

func missingField(method, field string) *types.NodeError {
	return types.Errorf(types.ProtocolError, "node did not report %s", field).WithOp(method).WithField(field)
}

// withOp 为错误附加调用信息
func withOp(err error, op string) error {
	var ne *types.NodeError
	if errors.As(err, &ne) {
		return ne.WithOp(op)
	}
	return err
}

func withField(err error, field string) error {
	var ne *types.NodeError
	if errors.As(err, &ne) && ne.Field == "" {
		return ne.WithField(field)
	}
	return err
}
