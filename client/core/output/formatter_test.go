package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/chainmeta/pkg/types"
)

func sampleInfo() *types.SystemInfo {
	ss58 := uint16(0)
	return &types.SystemInfo{
		ChainID:       "0x91b171bb158e2d3848fa23a9f1c25182fb8e20313b2c1eb49219da7a70ce90c3",
		ChainName:     "Polkadot",
		TokenDecimals: 10,
		TokenSymbol:   "DOT",
		NodeName:      "Parity Polkadot",
		SS58Format:    &ss58,
	}
}

func sampleRuntime() *types.RuntimeVersion {
	return &types.RuntimeVersion{
		SpecName:    "polkadot",
		SpecVersion: 9430,
		Apis: []types.ApiEntry{
			{ID: types.MustParseApiID("0xdf6acb689907609b"), Version: 4},
			{ID: types.MustParseApiID("0xaabbccdd11223344"), Version: 2},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"json", "pretty", "table", "text"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, Format(name), f)
	}

	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = ParseFormat("yaml")
	assert.Error(t, err)
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatJSON, &buf).Print(sampleInfo()))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "Polkadot", got["chainName"])
	assert.Equal(t, float64(10), got["tokenDecimals"])
	assert.Equal(t, float64(0), got["ss58Format"])
}

func TestPrintRuntimeJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatPretty, &buf).Print(sampleRuntime()))
	assert.Contains(t, buf.String(), `"id": "0xdf6acb689907609b"`)
	assert.Contains(t, buf.String(), "\n  ")
}

func TestPrintText(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(FormatText, &buf)

	require.NoError(t, f.Print(sampleInfo()))
	require.NoError(t, f.Print(sampleRuntime()))

	out := buf.String()
	assert.Contains(t, out, "chain name: Polkadot\n")
	assert.Contains(t, out, "token decimals: 10\n")
	assert.Contains(t, out, "node name: Parity Polkadot\n")
	assert.Contains(t, out, "spec name: polkadot\n")

	// API 按节点顺序输出
	first := strings.Index(out, "api id: 0xdf6acb689907609b version: 4")
	second := strings.Index(out, "api id: 0xaabbccdd11223344 version: 2")
	assert.True(t, first >= 0 && second > first, out)
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatTable, &buf).Print(sampleRuntime()))

	out := buf.String()
	assert.Contains(t, out, "polkadot")
	assert.Contains(t, out, "Core")
	assert.Contains(t, out, "0xaabbccdd11223344")
}

func TestPrintSilent(t *testing.T) {
	var buf, logs bytes.Buffer
	f := NewFormatter(FormatJSON, &buf)
	f.SetLogWriter(&logs)
	f.SetSilent(true)

	require.NoError(t, f.Print(sampleInfo()))
	f.PrintSuccess("success")
	f.PrintError(errors.New("boom"))

	assert.Empty(t, buf.String())
	assert.Equal(t, "❌ Error: boom\n", logs.String())
}

func TestMessagesGoToLogWriter(t *testing.T) {
	var buf, logs bytes.Buffer
	f := NewFormatter(FormatJSON, &buf)
	f.SetLogWriter(&logs)

	f.PrintSuccess("success")
	f.PrintInfo("connecting")

	assert.Empty(t, buf.String())
	assert.Contains(t, logs.String(), "success")
	assert.Contains(t, logs.String(), "connecting")
}

func TestApiRowsUnknownName(t *testing.T) {
	rows := ApiRows(sampleRuntime())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Core", "0xdf6acb689907609b", "4"}, rows[0])
	assert.Equal(t, []string{"-", "0xaabbccdd11223344", "2"}, rows[1])
}
