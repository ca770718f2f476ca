// Package client 节点客户端的统一入口
//
// 应用的组合根应当通过 New 或 Module 显式构建客户端并持有其所有权；
// GetInstance 仅为脚本与简单程序保留的进程级便捷实例。
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/weisyn/chainmeta/client/core/node"
	"github.com/weisyn/chainmeta/client/pkg/config"
	"github.com/weisyn/chainmeta/internal/core/infrastructure/log"
)

// ErrAlreadyInitialized 全局实例已构建后再调用 Configure
var ErrAlreadyInitialized = errors.New("client: global instance already initialized")

// New 根据配置创建节点客户端，不会连接节点
func New(cfg *config.Config, logger *zap.Logger, opts ...node.Option) (*node.Client, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	if logger == nil {
		logger = log.L()
	}

	base := []node.Option{
		node.WithLogger(logger),
		node.WithRequestTimeout(cfg.RequestTimeout.Std()),
		node.WithDialTimeout(cfg.DialTimeout.Std()),
	}

	logger.Debug("Node client created",
		zap.String("module", "client"),
		zap.String("endpoint", cfg.NodeEndpoint))

	return node.New(cfg.NodeEndpoint, append(base, opts...)...), nil
}

// ModuleParams 定义客户端模块的依赖参数
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *zap.Logger
	Options   []node.Option `optional:"true"`
}

// Module 返回客户端模块，停止时断开连接
func Module() fx.Option {
	return fx.Module("client",
		fx.Provide(provideClient),
	)
}

func provideClient(params ModuleParams) (*node.Client, error) {
	c, err := New(params.Config, params.Logger, params.Options...)
	if err != nil {
		return nil, err
	}

	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			c.Disconnect()
			return nil
		},
	})
	return c, nil
}

var (
	instanceOnce sync.Once
	instance     *node.Client

	configMu     sync.Mutex
	globalConfig *config.Config
	initialized  bool
)

// Configure 设置全局实例使用的配置，必须在首次 GetInstance 之前调用
func Configure(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("client: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}

	configMu.Lock()
	defer configMu.Unlock()
	if initialized {
		return ErrAlreadyInitialized
	}
	globalConfig = cfg
	return nil
}

// GetInstance 返回进程级客户端实例，首次调用时构建，不会连接节点
//
// 并发的首次调用只会构建一个实例。Configure 给出的配置无效时退回默认配置。
func GetInstance() *node.Client {
	instanceOnce.Do(func() {
		configMu.Lock()
		cfg := globalConfig
		initialized = true
		configMu.Unlock()

		instance = newInstance(cfg, log.L())
	})
	return instance
}

// newInstance 构建全局实例，配置无效时退回默认配置
func newInstance(cfg *config.Config, logger *zap.Logger) *node.Client {
	c, err := New(cfg, logger)
	if err == nil {
		return c
	}
	logger.Warn("Falling back to default client config",
		zap.String("module", "client"), zap.Error(err))

	// DefaultConfig 总能通过 Validate
	c, err = New(config.DefaultConfig(), logger)
	if err != nil {
		logger.Error("Default client config rejected",
			zap.String("module", "client"), zap.Error(err))
	}
	return c
}
