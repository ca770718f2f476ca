package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/weisyn/chainmeta/pkg/types"
)

// EntryWarning 被丢弃的 apis 条目
type EntryWarning struct {
	Index  int    // 条目在节点响应中的位置
	Raw    string // 原始报文（截断）
	Reason string // 丢弃原因
}

// String 便于日志输出
func (w EntryWarning) String() string {
	return fmt.Sprintf("apis[%d] %s: %s", w.Index, w.Raw, w.Reason)
}

// runtimeVersionFrame 外层结构；apis 先保留原始报文，逐条解码
type runtimeVersionFrame struct {
	SpecName           json.RawMessage `json:"specName"`
	ImplName           json.RawMessage `json:"implName"`
	AuthoringVersion   json.RawMessage `json:"authoringVersion"`
	SpecVersion        json.RawMessage `json:"specVersion"`
	ImplVersion        json.RawMessage `json:"implVersion"`
	TransactionVersion json.RawMessage `json:"transactionVersion"`
	StateVersion       json.RawMessage `json:"stateVersion"`
	Apis               json.RawMessage `json:"apis"`
}

// DecodeRuntimeVersion 解码 state_getRuntimeVersion 结果
//
// 外层对象或 apis 数组本身损坏时整体失败（DecodingError）；单个条目格式错误
// 只丢弃该条目并返回 EntryWarning，其余条目保持节点给出的顺序。
func DecodeRuntimeVersion(data []byte) (types.RuntimeVersion, []EntryWarning, error) {
	var rv types.RuntimeVersion

	trimmed := bytes.TrimSpace(data)
	if IsNull(trimmed) || trimmed[0] != '{' {
		return rv, nil, types.Errorf(types.DecodingError, "runtime version is not an object: %s", truncate(trimmed))
	}

	var frame runtimeVersionFrame
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return rv, nil, types.NewError(types.DecodingError, "malformed runtime version", err)
	}

	specName, err := decodeStringField(frame.SpecName, "specName")
	if err != nil {
		return rv, nil, err
	}
	if specName == "" {
		return rv, nil, types.Errorf(types.DecodingError, "specName is empty").WithField("specName")
	}
	rv.SpecName = specName

	if frame.ImplName != nil && !IsNull(frame.ImplName) {
		if rv.ImplName, err = decodeStringField(frame.ImplName, "implName"); err != nil {
			return rv, nil, err
		}
	}

	numeric := []struct {
		name string
		raw  json.RawMessage
		dst  *uint32
	}{
		{"authoringVersion", frame.AuthoringVersion, &rv.AuthoringVersion},
		{"specVersion", frame.SpecVersion, &rv.SpecVersion},
		{"implVersion", frame.ImplVersion, &rv.ImplVersion},
		{"transactionVersion", frame.TransactionVersion, &rv.TransactionVersion},
		{"stateVersion", frame.StateVersion, &rv.StateVersion},
	}
	for _, n := range numeric {
		if n.raw == nil {
			continue
		}
		v, perr := parseUint(n.raw, 32)
		if perr != nil {
			return types.RuntimeVersion{}, nil, types.NewError(types.DecodingError, "invalid "+n.name, perr).WithField(n.name)
		}
		*n.dst = uint32(v)
	}

	rv.Apis = []types.ApiEntry{}
	if frame.Apis == nil || IsNull(frame.Apis) {
		return rv, nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(frame.Apis, &items); err != nil {
		return types.RuntimeVersion{}, nil, types.NewError(types.DecodingError, "apis is not an array", err).WithField("apis")
	}

	var warnings []EntryWarning
	for i, item := range items {
		entry, reason := decodeApiEntry(item)
		if reason != "" {
			warnings = append(warnings, EntryWarning{Index: i, Raw: truncate(item), Reason: reason})
			continue
		}
		rv.Apis = append(rv.Apis, entry)
	}

	return rv, warnings, nil
}

// decodeApiEntry 解码单个条目，失败时返回丢弃原因
//
// 支持 ["0x<16 hex>", n] 与 {"id": "0x…", "num"|"version": n} 两种形态。
func decodeApiEntry(item json.RawMessage) (types.ApiEntry, string) {
	var entry types.ApiEntry

	var idRaw, verRaw json.RawMessage
	trimmed := bytes.TrimSpace(item)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '[':
		var tuple []json.RawMessage
		if err := json.Unmarshal(trimmed, &tuple); err != nil {
			return entry, "malformed tuple"
		}
		if len(tuple) > 0 {
			idRaw = tuple[0]
		}
		if len(tuple) > 1 {
			verRaw = tuple[1]
		}
		if len(tuple) > 2 {
			return entry, fmt.Sprintf("tuple has %d elements", len(tuple))
		}
	case len(trimmed) > 0 && trimmed[0] == '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return entry, "malformed object"
		}
		idRaw = obj["id"]
		if v, ok := obj["num"]; ok {
			verRaw = v
		} else {
			verRaw = obj["version"]
		}
	default:
		return entry, "entry is neither a tuple nor an object"
	}

	if IsNull(idRaw) {
		return entry, "missing id"
	}
	var idStr string
	if err := json.Unmarshal(idRaw, &idStr); err != nil {
		return entry, "id is not a string"
	}
	id, err := types.ParseApiID(idStr)
	if err != nil {
		return entry, err.Error()
	}
	if id.IsZero() {
		return entry, "zero id"
	}

	if IsNull(verRaw) {
		return entry, "missing version"
	}
	v, err := parseUint(verRaw, 32)
	if err != nil {
		return entry, "invalid version: " + err.Error()
	}
	if v == 0 {
		return entry, "zero version"
	}

	entry.ID = id
	entry.Version = uint32(v)
	return entry, ""
}
