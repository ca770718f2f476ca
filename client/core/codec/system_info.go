package codec

import (
	"bytes"
	"encoding/json"

	"github.com/weisyn/chainmeta/pkg/types"
)

// 结果字段名
const (
	FieldChainID       = "chainId"
	FieldChainName     = "chainName"
	FieldTokenDecimals = "tokenDecimals"
	FieldTokenSymbol   = "tokenSymbol"
	FieldSS58Format    = "ss58Format"
	FieldNodeName      = "nodeName"
	FieldBlock         = "block"
)

// Properties system_properties 解码结果
//
// nil 字段表示节点未上报。部分节点会在同一对象里给出 chainId/chainName。
type Properties struct {
	ChainID       *string
	ChainName     *string
	TokenDecimals *uint32
	TokenSymbol   *string
	SS58Format    *uint16
}

// DecodeProperties 解码 system_properties 结果
//
// tokenDecimals/tokenSymbol 在多币种链上是数组，取第一个元素。
func DecodeProperties(result json.RawMessage) (Properties, error) {
	var props Properties

	trimmed := bytes.TrimSpace(result)
	if IsNull(trimmed) || trimmed[0] != '{' {
		return props, types.Errorf(types.DecodingError, "properties is not an object: %s", truncate(trimmed))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return props, types.NewError(types.DecodingError, "malformed properties", err)
	}

	if raw, ok := fields[FieldTokenDecimals]; ok {
		first, err := firstElement(raw)
		if err != nil {
			return props, types.NewError(types.DecodingError, "invalid token decimals", err).WithField(FieldTokenDecimals)
		}
		v, err := parseUint(first, 32)
		if err != nil {
			return props, types.NewError(types.DecodingError, "invalid token decimals", err).WithField(FieldTokenDecimals)
		}
		d := uint32(v)
		props.TokenDecimals = &d
	}

	if raw, ok := fields[FieldTokenSymbol]; ok {
		first, err := firstElement(raw)
		if err != nil {
			return props, types.NewError(types.DecodingError, "invalid token symbol", err).WithField(FieldTokenSymbol)
		}
		s, err := decodeStringField(first, FieldTokenSymbol)
		if err != nil {
			return props, err
		}
		props.TokenSymbol = &s
	}

	if raw, ok := fields[FieldSS58Format]; ok {
		v, err := parseUint(raw, 16)
		if err != nil {
			return props, types.NewError(types.DecodingError, "invalid ss58 format", err).WithField(FieldSS58Format)
		}
		f := uint16(v)
		props.SS58Format = &f
	}

	for _, name := range []string{FieldChainID, FieldChainName} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		s, err := decodeStringField(raw, name)
		if err != nil {
			return props, err
		}
		if name == FieldChainID {
			props.ChainID = &s
		} else {
			props.ChainName = &s
		}
	}

	return props, nil
}

// Combined 属性中是否已包含完整的链身份
func (p Properties) Combined() bool {
	return p.ChainID != nil && p.ChainName != nil
}

// decodeStringField 解码字符串字段
func decodeStringField(raw json.RawMessage, field string) (string, error) {
	var s string
	if IsNull(raw) {
		return "", types.Errorf(types.DecodingError, "%s is null", field).WithField(field)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", types.NewError(types.DecodingError, field+" is not a string", err).WithField(field)
	}
	return s, nil
}

// DecodeSystemInfo 严格解码组合格式的系统信息
//
// 四个字段 chainId/chainName/tokenDecimals/tokenSymbol 缺一不可。
func DecodeSystemInfo(data []byte) (types.SystemInfo, error) {
	var info types.SystemInfo

	props, err := DecodeProperties(data)
	if err != nil {
		return info, err
	}

	switch {
	case props.ChainID == nil:
		return info, missing(FieldChainID)
	case props.ChainName == nil:
		return info, missing(FieldChainName)
	case props.TokenDecimals == nil:
		return info, missing(FieldTokenDecimals)
	case props.TokenSymbol == nil:
		return info, missing(FieldTokenSymbol)
	}

	info.ChainID = *props.ChainID
	info.ChainName = *props.ChainName
	info.TokenDecimals = *props.TokenDecimals
	info.TokenSymbol = *props.TokenSymbol
	info.SS58Format = props.SS58Format
	return info, nil
}

func missing(field string) *types.NodeError {
	return types.Errorf(types.DecodingError, "required field %s is missing", field).WithField(field)
}
