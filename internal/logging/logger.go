package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "TUYALOCAL_LOG_LEVEL"

// maxDumpBytes limits hex/ascii dumps in log fields
const maxDumpBytes = 256

// FileConfig enables a rotating log file next to console output
type FileConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize,omitempty"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups,omitempty"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge,omitempty"`
	Compress   bool   `mapstructure:"compress" yaml:"compress,omitempty"`
}

// Console outputs
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

// Config describes how the package logger is built
type Config struct {
	Level  string      `mapstructure:"level" yaml:"level,omitempty"`
	Format string      `mapstructure:"format" yaml:"format,omitempty"` // "console" (default) or "json"
	Output string      `mapstructure:"output" yaml:"output,omitempty"` // "stdout" (default) or "stderr"
	File   *FileConfig `mapstructure:"file" yaml:"file,omitempty"`
}

// Initialize creates a new logger with the specified level.
// If level is empty, it checks TUYALOCAL_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	return InitializeWithConfig(Config{Level: level})
}

// InitializeFromEnv initializes the logger from the TUYALOCAL_LOG_LEVEL
// environment variable.
func InitializeFromEnv() error {
	return Initialize("")
}

// InitializeWithConfig builds the package logger from cfg.
// An empty level falls back to the environment, then to silent mode.
func InitializeWithConfig(cfg Config) error {
	level := cfg.Level
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		SetLogger(zap.NewNop())
		return nil
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "json" {
		encoderCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	ws := consoleSink(cfg.Output)
	if cfg.File != nil && cfg.File.Filename != "" {
		// Console + rotating file
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		ws = zapcore.NewMultiWriteSyncer(ws, zapcore.AddSync(lj))
	}

	core := zapcore.NewCore(encoder, ws, ParseLevel(level))
	SetLogger(zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))))
	return nil
}

// consoleSink returns the console writer named by output
func consoleSink(output string) zapcore.WriteSyncer {
	if strings.ToLower(output) == OutputStderr {
		return zapcore.Lock(os.Stderr)
	}
	return zapcore.Lock(os.Stdout)
}

// ParseLevel maps a level name to a zap level.
// Unknown names map to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogger replaces the package logger (useful for tests and host applications)
func SetLogger(l *zap.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()

	if l == nil {
		// Silent until initialized
		return zap.NewNop()
	}
	return l
}

// Named returns a child of the global logger
func Named(name string) *zap.Logger {
	return GetLogger().Named(name)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// BytesFields returns length, hex and ascii fields for a byte slice
func BytesFields(data []byte) []zap.Field {
	return []zap.Field{
		zap.Int("length", len(data)),
		zap.String("hex", HexDump(data)),
		zap.String("ascii", ASCIIDump(data)),
	}
}

// LogFrame logs a frame sent to or received from a device.
// prefix is the per-device debug prefix (may be empty).
func LogFrame(l *zap.Logger, prefix, deviceID, direction string, data []byte) {
	if l == nil {
		l = GetLogger()
	}
	msg := "Device frame"
	if prefix != "" {
		msg = fmt.Sprintf("%s %s", prefix, msg)
	}
	fields := append([]zap.Field{
		zap.String("device_id", deviceID),
		zap.String("direction", direction),
	}, BytesFields(data)...)
	l.Debug(msg, fields...)
}

// HexDump encodes data as hex, truncated to the first 256 bytes
func HexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > maxDumpBytes {
		return hex.EncodeToString(data[:maxDumpBytes]) + "..."
	}
	return hex.EncodeToString(data)
}

// ASCIIDump replaces non-printable bytes with '.', truncated to the first 256 bytes
func ASCIIDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > maxDumpBytes {
		data = data[:maxDumpBytes]
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = GetLogger().Sync()
}
