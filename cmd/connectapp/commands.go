package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weisyn/chainmeta/client/core/node"
	"github.com/weisyn/chainmeta/client/core/output"
	"github.com/weisyn/chainmeta/pkg/types"
)

// newInfoCmd 查询系统信息
func newInfoCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "查询链信息",
		Long:  "查询链ID（创世哈希）、链名称、代币符号与精度",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, func(ctx context.Context, c *node.Client, f *output.Formatter) error {
				info, err := c.GetSystemInfo(ctx)
				if err != nil {
					return err
				}
				return f.Print(info)
			})
		},
	}
}

// newRuntimeCmd 查询运行时版本
func newRuntimeCmd(flags *GlobalFlags) *cobra.Command {
	var (
		atHash   string
		atNumber uint32
	)

	cmd := &cobra.Command{
		Use:   "runtime",
		Short: "查询运行时版本与 API 列表",
		Long:  "查询指定区块（默认最新区块）的运行时版本及其支持的 API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := types.Latest()
			switch {
			case atHash != "" && cmd.Flags().Changed("number"):
				return fmt.Errorf("--at 与 --number 不能同时使用")
			case atHash != "":
				ref = types.AtHash(atHash)
			case cmd.Flags().Changed("number"):
				ref = types.AtNumber(atNumber)
			}

			return withClient(cmd, flags, func(ctx context.Context, c *node.Client, f *output.Formatter) error {
				rv, err := c.GetRuntimeVersion(ctx, ref)
				if err != nil {
					return err
				}
				return f.Print(rv)
			})
		},
	}

	cmd.Flags().StringVar(&atHash, "at", "", "区块哈希 (0x 前缀)")
	cmd.Flags().Uint32Var(&atNumber, "number", 0, "区块高度")
	return cmd
}
