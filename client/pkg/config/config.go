// Package config provides configuration management functionality for client operations.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/weisyn/chainmeta/client/core/transport"
	logconfig "github.com/weisyn/chainmeta/internal/config/log"
)

const (
	// DefaultNodeEndpoint 默认节点地址
	DefaultNodeEndpoint = "ws://127.0.0.1:9944"

	configDirName  = ".chainmeta"
	configFileName = "config.json"
)

// Duration 可用 "30s" 字符串或纳秒整数表示的时长
type Duration time.Duration

// Std 转换为 time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON 输出为时长字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON 接受时长字符串或纳秒整数
func (d *Duration) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// Config 客户端配置
type Config struct {
	// 节点配置
	NodeEndpoint   string   `json:"node_endpoint"`   // 节点地址（ws/wss/http/https/host:port/multiaddr）
	RequestTimeout Duration `json:"request_timeout"` // 单次请求超时
	DialTimeout    Duration `json:"dial_timeout"`    // 拨号超时

	// 日志配置
	Log *logconfig.LogOptions `json:"log,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		NodeEndpoint:   DefaultNodeEndpoint,
		RequestTimeout: Duration(transport.DefaultRequestTimeout),
		DialTimeout:    Duration(transport.DefaultDialTimeout),
		Log:            logconfig.DefaultLogOptions(),
	}
}

// DefaultPath 默认配置文件路径
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, configDirName, configFileName)
}

// Load 加载配置；文件中未出现的字段保持默认值
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	//nolint:gosec // G304: 路径由调用方指定
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if cfg.Log == nil {
		cfg.Log = logconfig.DefaultLogOptions()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault 配置文件不存在时返回默认配置，不写文件
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// Save 保存配置
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}

	// 确保目录存在
	//nolint:gosec // G301: 配置目录需要用户可读权限
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	//nolint:gosec // G306: 配置文件不含敏感信息
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if _, err := transport.ParseEndpoint(c.NodeEndpoint); err != nil {
		return fmt.Errorf("node_endpoint: %w", err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout.Std())
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be positive, got %s", c.DialTimeout.Std())
	}
	if c.Log != nil && c.Log.Level != "" && !logconfig.ValidLevel(c.Log.Level) {
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}
