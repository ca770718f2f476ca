package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// parseUint 解析非负整数（支持 JSON 数字、十进制字符串与 0x 十六进制字符串）
//
// 负数、小数、指数形式与越界值一律报错，不会静默归零。
func parseUint(raw json.RawMessage, bitSize int) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("value is null")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("invalid string: %w", err)
		}
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			v, err := strconv.ParseUint(s[2:], 16, bitSize)
			if err != nil {
				return 0, fmt.Errorf("invalid hex number %q: %w", s, err)
			}
			return v, nil
		}
		v, err := strconv.ParseUint(s, 10, bitSize)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q: %w", s, err)
		}
		return v, nil
	}

	v, err := strconv.ParseUint(string(raw), 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("not a non-negative integer: %s", truncate(raw))
	}
	return v, nil
}

// firstElement 数组取首元素，非数组原样返回
func firstElement(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return raw, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("invalid array: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty array")
	}
	return items[0], nil
}
