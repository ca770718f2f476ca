package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/weisyn/chainmeta/pkg/types"
)

// Endpoint 规范化后的节点端点（ws 或 wss URL）
type Endpoint struct {
	URL *url.URL
	Raw string // 用户原始输入
}

// String 返回规范化 URL
func (e Endpoint) String() string {
	if e.URL == nil {
		return ""
	}
	return e.URL.String()
}

// ParseEndpoint 解析并校验端点
//
// 支持：
//   - ws://host:port、wss://host:port
//   - http(s)://...（节点在同一端口提供 WebSocket，映射为 ws/wss）
//   - host:port（默认 ws）
//   - multiaddr，如 /ip4/127.0.0.1/tcp/9944/ws、/dns4/rpc.example.org/tcp/443/wss
func ParseEndpoint(raw string) (Endpoint, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Endpoint{}, invalidEndpoint(raw, fmt.Errorf("empty endpoint"))
	}

	var (
		u   *url.URL
		err error
	)
	switch {
	case strings.HasPrefix(s, "/"):
		u, err = parseMultiaddr(s)
	case strings.Contains(s, "://"):
		u, err = parseURL(s)
	default:
		u, err = parseURL("ws://" + s)
	}
	if err != nil {
		return Endpoint{}, invalidEndpoint(raw, err)
	}
	return Endpoint{URL: u, Raw: raw}, nil
}

func invalidEndpoint(raw string, cause error) error {
	ne := types.NewError(types.ConnectionError, fmt.Sprintf("invalid endpoint %q", raw), cause)
	ne.Reason = types.ReasonInvalidEndpoint
	return ne
}

// parseURL 校验 URL 形式的端点
func parseURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "http":
		u.Scheme = "ws"
	case "wss", "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.User != nil {
		return nil, fmt.Errorf("credentials in endpoint are not supported")
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host")
	}
	if p := u.Port(); p != "" {
		if err := validatePort(p); err != nil {
			return nil, err
		}
	} else if strings.HasSuffix(u.Host, ":") {
		return nil, fmt.Errorf("empty port")
	}
	return u, nil
}

// parseMultiaddr 将 multiaddr 转换为 ws/wss URL
func parseMultiaddr(s string) (*url.URL, error) {
	m, err := ma.NewMultiaddr(s)
	if err != nil {
		return nil, err
	}

	var host string
	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if v, err := m.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	if host == "" {
		return nil, fmt.Errorf("multiaddr %s has no host component", s)
	}

	port, err := m.ValueForProtocol(ma.P_TCP)
	if err != nil {
		return nil, fmt.Errorf("multiaddr %s has no tcp component", s)
	}

	scheme := "ws"
	for _, p := range m.Protocols() {
		switch p.Name {
		case "wss", "tls":
			scheme = "wss"
		case "udp", "quic", "quic-v1", "p2p-circuit":
			return nil, fmt.Errorf("multiaddr protocol %s is not supported", p.Name)
		}
	}

	return &url.URL{Scheme: scheme, Host: net.JoinHostPort(host, port)}, nil
}

func validatePort(p string) error {
	n, err := strconv.Atoi(p)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", p)
	}
	return nil
}
