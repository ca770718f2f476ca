package log

import (
	"context"
	"fmt"

	logconfig "github.com/weisyn/chainmeta/internal/config/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ModuleParams 定义日志模块的依赖参数
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Options   *logconfig.LogOptions `optional:"true"` // 未提供时使用默认配置
}

// Module 返回日志模块
func Module() fx.Option {
	return fx.Module("log",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 根据配置创建日志记录器并设为全局记录器
func ProvideServices(params ModuleParams) (*zap.Logger, error) {
	logger, err := New(logconfig.New(params.Options))
	if err != nil {
		return nil, fmt.Errorf("根据用户配置创建日志记录器失败: %w", err)
	}

	SetLogger(logger)

	params.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			// stderr 上的 Sync 在部分平台会返回 EINVAL，忽略
			_ = logger.Sync()
			return nil
		},
	})

	return logger, nil
}
