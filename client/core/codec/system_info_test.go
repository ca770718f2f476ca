package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/chainmeta/pkg/types"
)

func TestDecodeProperties(t *testing.T) {
	props, err := DecodeProperties(json.RawMessage(`{"ss58Format":0,"tokenDecimals":10,"tokenSymbol":"DOT"}`))
	require.NoError(t, err)
	require.NotNil(t, props.TokenDecimals)
	require.NotNil(t, props.TokenSymbol)
	require.NotNil(t, props.SS58Format)
	assert.Equal(t, uint32(10), *props.TokenDecimals)
	assert.Equal(t, "DOT", *props.TokenSymbol)
	assert.Equal(t, uint16(0), *props.SS58Format)
	assert.False(t, props.Combined())
}

func TestDecodePropertiesMultiToken(t *testing.T) {
	props, err := DecodeProperties(json.RawMessage(`{"tokenDecimals":[12,12],"tokenSymbol":["KAR","KUSD"]}`))
	require.NoError(t, err)
	assert.Equal(t, uint32(12), *props.TokenDecimals)
	assert.Equal(t, "KAR", *props.TokenSymbol)
	assert.Nil(t, props.SS58Format)
}

func TestDecodePropertiesEmpty(t *testing.T) {
	props, err := DecodeProperties(json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Nil(t, props.TokenDecimals)
	assert.Nil(t, props.TokenSymbol)
}

func TestDecodePropertiesInvalidNumbers(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"negative decimals", `{"tokenDecimals":-1,"tokenSymbol":"DOT"}`, FieldTokenDecimals},
		{"fractional decimals", `{"tokenDecimals":1.5,"tokenSymbol":"DOT"}`, FieldTokenDecimals},
		{"text decimals", `{"tokenDecimals":"ten","tokenSymbol":"DOT"}`, FieldTokenDecimals},
		{"empty decimals array", `{"tokenDecimals":[],"tokenSymbol":"DOT"}`, FieldTokenDecimals},
		{"null decimals", `{"tokenDecimals":null,"tokenSymbol":"DOT"}`, FieldTokenDecimals},
		{"numeric symbol", `{"tokenDecimals":10,"tokenSymbol":5}`, FieldTokenSymbol},
		{"ss58 overflow", `{"ss58Format":70000}`, FieldSS58Format},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeProperties(json.RawMessage(tt.data))
			require.Error(t, err)
			var ne *types.NodeError
			require.ErrorAs(t, err, &ne)
			assert.Equal(t, types.DecodingError, ne.Type)
			assert.Equal(t, tt.field, ne.Field)
		})
	}
}

func TestDecodePropertiesNotObject(t *testing.T) {
	for _, data := range []string{`null`, `[]`, `"x"`, ``} {
		_, err := DecodeProperties(json.RawMessage(data))
		assert.True(t, types.IsType(err, types.DecodingError), "input %q", data)
	}
}

func TestDecodeSystemInfoRoundTrip(t *testing.T) {
	payloads := []types.SystemInfo{
		{ChainID: genesisHash, ChainName: "Polkadot", TokenDecimals: 10, TokenSymbol: "DOT"},
		{ChainID: "0x01", ChainName: "Development", TokenDecimals: 0, TokenSymbol: "UNIT"},
		{ChainID: "kusama", ChainName: "Kusama", TokenDecimals: 12, TokenSymbol: "KSM"},
	}

	for _, want := range payloads {
		data, err := json.Marshal(want)
		require.NoError(t, err)

		got, err := DecodeSystemInfo(data)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDecodeSystemInfoMissingField(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"chain id", `{"chainName":"Polkadot","tokenDecimals":10,"tokenSymbol":"DOT"}`, FieldChainID},
		{"chain name", `{"chainId":"0x01","tokenDecimals":10,"tokenSymbol":"DOT"}`, FieldChainName},
		{"decimals", `{"chainId":"0x01","chainName":"Polkadot","tokenSymbol":"DOT"}`, FieldTokenDecimals},
		{"symbol", `{"chainId":"0x01","chainName":"Polkadot","tokenDecimals":10}`, FieldTokenSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSystemInfo([]byte(tt.data))
			var ne *types.NodeError
			require.ErrorAs(t, err, &ne)
			assert.Equal(t, types.DecodingError, ne.Type)
			assert.Equal(t, tt.field, ne.Field)
		})
	}
}
