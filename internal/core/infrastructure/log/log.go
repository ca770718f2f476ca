// Package log 提供基于 zap 的日志记录器构建与全局日志实例
//
// 控制台输出写到 stderr，文件输出经 lumberjack 轮转，格式为 JSON。
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logconfig "github.com/weisyn/chainmeta/internal/config/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// 全局日志实例
	globalLogger *zap.Logger
	// 用于保护全局日志实例的互斥锁
	mu sync.RWMutex
)

// 初始化全局日志记录器
func init() {
	ResetDefault()
}

// ResetDefault 重置全局日志记录器为默认配置
func ResetDefault() {
	logger, err := New(logconfig.New(nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize default logger: %v\n", err)
		return
	}
	SetLogger(logger)
}

// createFileWriter 创建带轮转的日志文件写入器
func createFileWriter(logPath string, config *logconfig.Config) (zapcore.WriteSyncer, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, fmt.Errorf("创建日志目录失败 %s: %w", filepath.Dir(logPath), err)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    config.GetMaxSize(),    // megabytes
		MaxBackups: config.GetMaxBackups(), // 最多保留文件数
		MaxAge:     config.GetMaxAge(),     // days
		Compress:   config.IsCompressionEnabled(),
	}), nil
}

// New 根据配置创建日志记录器
//
// 控制台与文件都未启用时返回 zap.NewNop()。
func New(config *logconfig.Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(config.GetZapLevel())

	var cores []zapcore.Core

	if config.IsConsoleEnabled() {
		cores = append(cores, zapcore.NewCore(config.CreateConsoleEncoder(), zapcore.Lock(os.Stderr), level))
	}

	if path := config.GetFilePath(); path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("获取日志文件绝对路径失败: %w", err)
		}
		writer, err := createFileWriter(absPath, config)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(config.CreateFileEncoder(), writer, level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	var zapOptions []zap.Option
	if config.IsCallerEnabled() {
		zapOptions = append(zapOptions, zap.AddCaller())
	}
	if config.IsStacktraceEnabled() {
		zapOptions = append(zapOptions, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zapOptions...), nil
}

// SetLogger 设置全局日志记录器
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		return
	}
	mu.Lock()
	globalLogger = logger
	mu.Unlock()
}

// L 获取全局日志记录器
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger == nil {
		return zap.NewNop()
	}
	return globalLogger
}

// WithModule 为 logger 添加 module 字段
func WithModule(logger *zap.Logger, module string) *zap.Logger {
	if logger == nil {
		logger = L()
	}
	return logger.With(zap.String("module", module))
}
