// Package codec 提供节点 JSON-RPC 2.0 报文的编解码
//
// 所有函数都是纯函数：不做 I/O，不写日志。运行时版本解码中被丢弃的条目
// 通过返回的 EntryWarning 告知调用方，由调用方决定如何记录。
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/weisyn/chainmeta/pkg/types"
)

// JSONRPCVersion 协议版本
const JSONRPCVersion = "2.0"

// 节点 RPC 方法
const (
	MethodSystemChain       = "system_chain"
	MethodSystemName        = "system_name"
	MethodSystemProperties  = "system_properties"
	MethodChainGetBlockHash = "chain_getBlockHash"
	MethodRuntimeVersion    = "state_getRuntimeVersion"
)

var (
	methodPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*(_[A-Za-z0-9]+)*$`)
	hashPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// Request JSON-RPC 2.0 请求
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Response JSON-RPC 2.0 响应
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError JSON-RPC 2.0 错误对象
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// EncodeRequest 编码请求
//
// ref 的零值表示不带参数；区块哈希必须是 0x 前缀的 32 字节十六进制。
func EncodeRequest(id uint64, method string, ref types.BlockRef) ([]byte, error) {
	if !methodPattern.MatchString(method) {
		return nil, types.Errorf(types.EncodingError, "invalid method name %q", method).WithOp(method)
	}

	params, err := encodeParams(ref)
	if err != nil {
		return nil, err.WithOp(method)
	}

	data, mErr := json.Marshal(&Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if mErr != nil {
		return nil, types.NewError(types.EncodingError, "marshal request", mErr).WithOp(method)
	}
	return data, nil
}

// encodeParams 将区块引用转换为位置参数
func encodeParams(ref types.BlockRef) ([]interface{}, *types.NodeError) {
	switch ref.Kind() {
	case types.BlockLatest:
		return []interface{}{}, nil
	case types.BlockHash:
		if !hashPattern.MatchString(ref.Hash()) {
			return nil, types.Errorf(types.EncodingError, "block hash %q is not 32 bytes of 0x hex", ref.Hash()).WithField("params")
		}
		return []interface{}{ref.Hash()}, nil
	case types.BlockNumber:
		// 仅 chain_getBlockHash 接受区块高度
		return []interface{}{ref.Number()}, nil
	default:
		return nil, types.Errorf(types.EncodingError, "unsupported block reference kind %s", ref.Kind()).WithField("params")
	}
}

// envelope 用于区分字段缺失与 null
type envelope struct {
	JSONRPC *string         `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// DecodeResponse 解码响应报文
//
// 节点返回 error 对象时得到 ProtocolError（携带 JSON-RPC 错误码）；若该响应
// 带有 id，同时返回 Response 以便调用方核对请求配对。报文本身不合法时得到
// DecodingError。
func DecodeResponse(data []byte) (*Response, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, types.NewError(types.DecodingError, "malformed response envelope", err)
	}
	if env.JSONRPC == nil || *env.JSONRPC != JSONRPCVersion {
		return nil, types.Errorf(types.DecodingError, "unsupported jsonrpc version").WithField("jsonrpc")
	}

	if env.Error != nil {
		ne := types.Errorf(types.ProtocolError, "node error: %s", env.Error.Message)
		ne.Code = env.Error.Code
		if env.ID == nil {
			return nil, ne
		}
		return &Response{JSONRPC: *env.JSONRPC, ID: *env.ID, Error: env.Error}, ne
	}
	if env.ID == nil {
		return nil, types.Errorf(types.DecodingError, "response has no id").WithField("id")
	}
	if env.Result == nil {
		return nil, types.Errorf(types.DecodingError, "response has neither result nor error").WithField("result")
	}

	return &Response{
		JSONRPC: *env.JSONRPC,
		ID:      *env.ID,
		Result:  env.Result,
	}, nil
}

// IsNull 判断 JSON 值是否缺失或为 null
func IsNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// DecodeString 解码字符串结果（system_chain / system_name / chain_getBlockHash）
func DecodeString(result json.RawMessage) (string, error) {
	if IsNull(result) {
		return "", types.Errorf(types.DecodingError, "result is null")
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return "", types.NewError(types.DecodingError, fmt.Sprintf("result is not a string: %s", truncate(result)), err)
	}
	return s, nil
}

// DecodeBlockHash 解码 chain_getBlockHash 的结果
//
// 结果为 null（区块不存在）时由调用方处理，此处只校验哈希格式。
func DecodeBlockHash(result json.RawMessage) (string, error) {
	hash, err := DecodeString(result)
	if err != nil {
		return "", err
	}
	if !hashPattern.MatchString(hash) {
		return "", types.Errorf(types.DecodingError, "block hash %q is not 32 bytes of 0x hex", truncate([]byte(hash)))
	}
	return hash, nil
}

// truncate 截断原始报文，用于错误与告警信息
func truncate(raw []byte) string {
	const max = 64
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
