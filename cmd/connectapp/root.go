package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/weisyn/chainmeta/client"
	"github.com/weisyn/chainmeta/client/core/node"
	"github.com/weisyn/chainmeta/client/core/output"
	"github.com/weisyn/chainmeta/client/pkg/config"
	"github.com/weisyn/chainmeta/internal/core/infrastructure/log"
	"github.com/weisyn/chainmeta/pkg/types"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigPath   string        // 配置文件路径
	Endpoint     string        // 节点地址（覆盖配置）
	Timeout      time.Duration // 请求超时（覆盖配置）
	OutputFormat string        // 输出格式
	Silent       bool          // 静默模式
	Verbose      bool          // 详细模式
}

// Execute 执行根命令
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd 根命令：连接、查询系统信息与运行时版本、断开
func newRootCmd() *cobra.Command {
	flags := &GlobalFlags{}

	cmd := &cobra.Command{
		Use:   "connectapp",
		Short: "连接节点并打印链信息与运行时 API",
		Long: `connectapp 连接到一个节点，依次查询系统信息与最新运行时版本，
打印所有运行时 API 条目后断开连接。

节点地址支持 ws://、wss://、http(s)://、host:port 与 multiaddr，例如：
  connectapp --endpoint wss://rpc.polkadot.io
  connectapp --endpoint /ip4/127.0.0.1/tcp/9944/ws`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, runConnect)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.ConfigPath, "config", "c", "", "配置文件路径 (默认: ~/.chainmeta/config.json)")
	pf.StringVarP(&flags.Endpoint, "endpoint", "e", "", "节点地址 (覆盖配置文件)")
	pf.DurationVarP(&flags.Timeout, "timeout", "t", 0, "请求超时 (覆盖配置文件)")
	pf.StringVarP(&flags.OutputFormat, "output", "o", string(output.FormatText), "输出格式: json|pretty|table|text")
	pf.BoolVar(&flags.Silent, "silent", false, "静默模式 (不输出结果)")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "详细日志")

	cmd.AddCommand(newInfoCmd(flags))
	cmd.AddCommand(newRuntimeCmd(flags))
	return cmd
}

// runFunc 在已连接的客户端上执行的命令逻辑
type runFunc func(ctx context.Context, c *node.Client, f *output.Formatter) error

// runConnect 默认流程
func runConnect(ctx context.Context, c *node.Client, f *output.Formatter) error {
	info, err := c.GetSystemInfo(ctx)
	if err != nil {
		return err
	}
	if err := f.Print(info); err != nil {
		return err
	}

	rv, err := c.GetRuntimeVersion(ctx, types.Latest())
	if err != nil {
		return err
	}
	if err := f.Print(rv); err != nil {
		return err
	}

	c.Disconnect()
	f.PrintSuccess("success")
	return nil
}

// loadConfig 加载配置并应用命令行覆盖
func loadConfig(flags *GlobalFlags) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置: %w", err)
	}

	if flags.Endpoint != "" {
		cfg.NodeEndpoint = flags.Endpoint
	}
	if flags.Timeout > 0 {
		cfg.RequestTimeout = config.Duration(flags.Timeout)
	}
	if flags.Verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withClient 组装应用、连接节点后执行 fn，结束时停止应用（断开连接）
func withClient(cmd *cobra.Command, flags *GlobalFlags, fn runFunc) error {
	format, err := output.ParseFormat(flags.OutputFormat)
	if err != nil {
		return err
	}
	formatter := output.NewFormatter(format, cmd.OutOrStdout())
	formatter.SetLogWriter(cmd.ErrOrStderr())
	formatter.SetSilent(flags.Silent)

	err = execute(cmd.Context(), flags, formatter, fn)
	if err != nil {
		reportError(formatter, err)
	}
	return err
}

func execute(ctx context.Context, flags *GlobalFlags, formatter *output.Formatter, fn runFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	var c *node.Client
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, cfg.Log),
		log.Module(),
		client.Module(),
		fx.Populate(&c),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("初始化应用: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("启动应用: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	formatter.PrintInfo("connecting to " + c.Endpoint())
	if err := c.Connect(ctx); err != nil {
		return err
	}

	return fn(ctx, c, formatter)
}

// reportError 输出错误；JSON 格式下同时输出结构化错误
func reportError(f *output.Formatter, err error) {
	f.PrintError(err)

	if f.Format() != output.FormatJSON && f.Format() != output.FormatPretty {
		return
	}

	code := "error"
	details := map[string]interface{}{}
	var ne *types.NodeError
	if errors.As(err, &ne) {
		code = string(ne.Type)
		if ne.Op != "" {
			details["op"] = ne.Op
		}
		if ne.Field != "" {
			details["field"] = ne.Field
		}
		if ne.Reason != "" {
			details["reason"] = ne.Reason
		}
		if ne.Code != 0 {
			details["code"] = ne.Code
		}
	}
	var detailValue interface{}
	if len(details) > 0 {
		detailValue = details
	}
	_ = f.Print(output.NewErrorOutput(code, err.Error(), detailValue))
}
