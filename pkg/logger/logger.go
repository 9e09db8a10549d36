package logger

import (
	"os"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log *zap.Logger
)

func init() {
	// 默认初始化一个 Nop Logger，防止未 Init 就调用导致 panic
	Log = zap.NewNop()
}

// Init initializes the global logger
// format: "console" / "json" / "logfmt"，为空时按 env 选择默认格式
func Init(env string, format string) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var err error
	switch format {
	case "logfmt":
		encCfg := config.EncoderConfig
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(
			zaplogfmt.NewEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			config.Level,
		)
		Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	case "json":
		config.Encoding = "json"
		config.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		Log, err = config.Build(zap.AddCallerSkip(1))
	default:
		Log, err = config.Build(zap.AddCallerSkip(1))
	}
	if err != nil {
		panic(err)
	}

	// 替换 zap 全局 logger，zap.L() 也输出到同一处
	zap.ReplaceGlobals(Log)
}

// Named 返回某个组件的子 logger。
// 撤销 helper 函数的 caller skip，保证日志中的调用位置准确
func Named(name string) *zap.Logger {
	return Log.WithOptions(zap.AddCallerSkip(-1)).Named(name)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
}

// Helper functions for direct usage
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}
