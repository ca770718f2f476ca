package fakenode

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// 预置节点数据
const (
	GenesisHash = "0x91b171bb158e2d3848fa23a9f1c25182fb8e20313b2c1eb49219da7a70ce90c3"
	ChainName   = "Polkadot"
	NodeName    = "Parity Polkadot"

	// BestNumber 预置节点的最新区块高度
	BestNumber = 10

	Properties = `{"ss58Format":0,"tokenDecimals":10,"tokenSymbol":"DOT"}`

	RuntimeVersion = `{
  "specName": "polkadot",
  "implName": "parity-polkadot",
  "authoringVersion": 0,
  "specVersion": 9430,
  "implVersion": 0,
  "apis": [
    ["0xdf6acb689907609b", 4],
    ["0x37e397fc7c91f5e4", 2],
    ["0x40fe3ad401f8959a", 6]
  ],
  "transactionVersion": 24,
  "stateVersion": 0
}`
)

// BlockHash 预置节点上指定高度的区块哈希
func BlockHash(number uint32) string {
	if number == 0 {
		return GenesisHash
	}
	return fmt.Sprintf("0x%064x", number)
}

// NewPolkadot 启动一个按 Polkadot 主网数据应答的测试节点
//
// chain_getBlockHash 与 state_getRuntimeVersion 按真实节点的参数规则校验，
// 参数类型不符时返回 -32602。
func NewPolkadot(logger *zap.Logger) *Node {
	n := New(logger)
	n.HandleResult("system_chain", ChainName)
	n.HandleResult("system_name", NodeName)
	n.HandleJSON("system_properties", Properties)
	n.Handle("chain_getBlockHash", handleBlockHash)
	n.Handle("state_getRuntimeVersion", handleRuntimeVersion)
	return n
}

// InvalidParams 参数错误
func InvalidParams(format string, args ...interface{}) *Error {
	return &Error{Code: -32602, Message: "Invalid params: " + fmt.Sprintf(format, args...)}
}

// handleBlockHash 参数为可选区块高度，未知高度返回 null
func handleBlockHash(req Request) (interface{}, *Error) {
	params, rpcErr := positional(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(params) == 0 {
		return BlockHash(BestNumber), nil
	}

	var number uint32
	if err := json.Unmarshal(params[0], &number); err != nil {
		return nil, InvalidParams("expected block number, got %s", params[0])
	}
	if number > BestNumber {
		return nil, nil
	}
	return BlockHash(number), nil
}

// handleRuntimeVersion 参数为可选区块哈希
func handleRuntimeVersion(req Request) (interface{}, *Error) {
	params, rpcErr := positional(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(params) > 0 {
		var hash string
		if err := json.Unmarshal(params[0], &hash); err != nil || !strings.HasPrefix(hash, "0x") {
			return nil, InvalidParams("invalid type: %s, expected a 0x-prefixed hex string", params[0])
		}
	}
	return json.RawMessage(RuntimeVersion), nil
}

func positional(req Request) ([]json.RawMessage, *Error) {
	var params []json.RawMessage
	if len(req.Params) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, InvalidParams("params must be an array")
	}
	return params, nil
}
