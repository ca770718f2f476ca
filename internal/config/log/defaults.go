package log

import (
	"go.uber.org/zap/zapcore"
)

// 日志配置默认值
const (
	// defaultLogLevel 默认日志级别
	defaultLogLevel = "info"

	// defaultToConsole 默认输出到 stderr，stdout 留给命令输出
	defaultToConsole = true

	// defaultFilePath 默认不写文件
	defaultFilePath = ""

	// defaultMaxSize 单个日志文件最大 100MB
	defaultMaxSize = 100

	// defaultMaxBackups 最多保留 10 个备份
	defaultMaxBackups = 10

	// defaultMaxAge 最多保留 30 天
	defaultMaxAge = 30

	defaultCompress = true

	// defaultEnableCaller 客户端日志量小，默认关闭调用者信息
	defaultEnableCaller = false

	defaultEnableStacktrace = false
)

// levelMap 日志级别映射
var levelMap = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"panic": zapcore.PanicLevel,
	"fatal": zapcore.FatalLevel,
}
