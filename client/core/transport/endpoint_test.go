package transport

import (
	"errors"
	"testing"

	"github.com/weisyn/chainmeta/pkg/types"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"ws url", "ws://127.0.0.1:9944", "ws://127.0.0.1:9944"},
		{"wss url with path", "wss://rpc.polkadot.io/ws", "wss://rpc.polkadot.io/ws"},
		{"http mapped to ws", "http://localhost:9933", "ws://localhost:9933"},
		{"https mapped to wss", "https://rpc.polkadot.io", "wss://rpc.polkadot.io"},
		{"upper case scheme", "WS://localhost:9944", "ws://localhost:9944"},
		{"bare host port", "localhost:9944", "ws://localhost:9944"},
		{"surrounding spaces", "  ws://localhost:9944  ", "ws://localhost:9944"},
		{"multiaddr ip4 ws", "/ip4/127.0.0.1/tcp/9944/ws", "ws://127.0.0.1:9944"},
		{"multiaddr dns4 wss", "/dns4/rpc.polkadot.io/tcp/443/wss", "wss://rpc.polkadot.io:443"},
		{"multiaddr tls ws", "/dns/rpc.polkadot.io/tcp/443/tls/ws", "wss://rpc.polkadot.io:443"},
		{"multiaddr ip6", "/ip6/::1/tcp/9944/ws", "ws://[::1]:9944"},
		{"multiaddr tcp only", "/ip4/10.0.0.1/tcp/9944", "ws://10.0.0.1:9944"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseEndpoint(tt.raw)
			if err != nil {
				t.Fatalf("ParseEndpoint(%q) error = %v", tt.raw, err)
			}
			if got := ep.String(); got != tt.want {
				t.Errorf("ParseEndpoint(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if ep.Raw != tt.raw {
				t.Errorf("Raw = %q, want %q", ep.Raw, tt.raw)
			}
		})
	}
}

func TestParseEndpointInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"unsupported scheme", "ftp://localhost:21"},
		{"missing host", "ws://:9944"},
		{"bad port", "ws://localhost:99999"},
		{"non numeric port", "localhost:port"},
		{"empty port", "ws://localhost:"},
		{"credentials", "ws://user:pass@localhost:9944"},
		{"bad multiaddr", "/ip4/999.0.0.1/tcp/9944"},
		{"multiaddr without tcp", "/ip4/127.0.0.1/udp/9944"},
		{"multiaddr without host", "/tcp/9944/ws"},
		{"multiaddr quic", "/ip4/127.0.0.1/udp/9944/quic-v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEndpoint(tt.raw)
			if err == nil {
				t.Fatalf("ParseEndpoint(%q) expected error", tt.raw)
			}
			var ne *types.NodeError
			if !errors.As(err, &ne) {
				t.Fatalf("error %v is not a NodeError", err)
			}
			if ne.Type != types.ConnectionError || ne.Reason != types.ReasonInvalidEndpoint {
				t.Errorf("got type=%s reason=%s, want connection/invalid_endpoint", ne.Type, ne.Reason)
			}
		})
	}
}

func TestEndpointStringZero(t *testing.T) {
	if got := (Endpoint{}).String(); got != "" {
		t.Errorf("zero Endpoint String() = %q, want empty", got)
	}
}
