// Package types 提供节点元数据相关的类型定义
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SystemInfo 链系统信息
//
// 由 GetSystemInfo 每次调用重新构建，调用方可自由共享。
type SystemInfo struct {
	ChainID       string  `json:"chainId"`              // 链ID（创世区块哈希）
	ChainName     string  `json:"chainName"`            // 链名称（system_chain）
	TokenDecimals uint32  `json:"tokenDecimals"`        // 代币精度
	TokenSymbol   string  `json:"tokenSymbol"`          // 代币符号
	NodeName      string  `json:"nodeName,omitempty"`   // 节点实现名称（system_name）
	SS58Format    *uint16 `json:"ss58Format,omitempty"` // 地址格式（可选）
}

// ApiIDLength API 标识固定宽度（字节）
const ApiIDLength = 8

// ApiID 运行时 API 标识（8 字节标签）
type ApiID [ApiIDLength]byte

// ParseApiID 解析 0x 前缀的 16 位十六进制 API 标识
func ParseApiID(s string) (ApiID, error) {
	var id ApiID
	raw, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("invalid api id %q: %w", s, err)
	}
	if len(raw) != ApiIDLength {
		return id, fmt.Errorf("invalid api id %q: want %d bytes, got %d", s, ApiIDLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustParseApiID 解析 API 标识，失败时 panic（仅用于常量表）
func MustParseApiID(s string) ApiID {
	id, err := ParseApiID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IsZero 是否为全零标识
func (id ApiID) IsZero() bool {
	return id == ApiID{}
}

// String 返回 0x 前缀的十六进制表示
func (id ApiID) String() string {
	return hexutil.Encode(id[:])
}

// MarshalJSON 以十六进制字符串输出
func (id ApiID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// 常见运行时 API 标识（blake2_64(名称)）
var knownApis = map[ApiID]string{
	MustParseApiID("0xdf6acb689907609b"): "Core",
	MustParseApiID("0x37e397fc7c91f5e4"): "Metadata",
	MustParseApiID("0x40fe3ad401f8959a"): "BlockBuilder",
	MustParseApiID("0xd2bc9897eed08f15"): "TaggedTransactionQueue",
	MustParseApiID("0xf78b278be53f454c"): "OffchainWorkerApi",
	MustParseApiID("0xaf2c0297a23e6d3d"): "ParachainHost",
	MustParseApiID("0xed99c5acb25eedf5"): "GrandpaApi",
	MustParseApiID("0xab3c0572291feb8b"): "SessionKeys",
	MustParseApiID("0xbc9d89904f5b923f"): "AccountNonceApi",
	MustParseApiID("0x37c8bb1350a9a2a8"): "TransactionPaymentApi",
}

// ApiEntry 运行时 API 条目（标识 + 版本）
type ApiEntry struct {
	ID      ApiID  `json:"id"`
	Version uint32 `json:"version"`
}

// Valid 标识与版本均非零时条目才对下游有意义
func (e ApiEntry) Valid() bool {
	return !e.ID.IsZero() && e.Version != 0
}

// Name 返回已知 API 的名称，未知时为空
func (e ApiEntry) Name() string {
	return knownApis[e.ID]
}

// RuntimeVersion 运行时版本信息
type RuntimeVersion struct {
	SpecName           string     `json:"specName"`
	ImplName           string     `json:"implName,omitempty"`
	AuthoringVersion   uint32     `json:"authoringVersion"`
	SpecVersion        uint32     `json:"specVersion"`
	ImplVersion        uint32     `json:"implVersion"`
	TransactionVersion uint32     `json:"transactionVersion"`
	StateVersion       uint32     `json:"stateVersion"`
	Apis               []ApiEntry `json:"apis"`
}

// ApiVersion 查询指定 API 的版本
func (rv *RuntimeVersion) ApiVersion(id ApiID) (uint32, bool) {
	for _, e := range rv.Apis {
		if e.ID == id {
			return e.Version, true
		}
	}
	return 0, false
}

// HasApi 运行时是否暴露指定 API
func (rv *RuntimeVersion) HasApi(id ApiID) bool {
	_, ok := rv.ApiVersion(id)
	return ok
}

// ApiByName 按已知名称查询（大小写不敏感）
func (rv *RuntimeVersion) ApiByName(name string) (ApiEntry, bool) {
	for _, e := range rv.Apis {
		if n := e.Name(); n != "" && strings.EqualFold(n, name) {
			return e, true
		}
	}
	return ApiEntry{}, false
}
