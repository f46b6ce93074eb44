// Package logger owns the process-wide zap logger: console output in
// development, rotated JSON files in production.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Config defines logger configuration
type Config struct {
	Environment string // "development", "testing", "production"
	Level       string // "debug", "info", "warn", "error"
	Filename    string // log file path, production only
	MaxSize     int    // megabytes per file
	MaxBackups  int    // rotated files to retain
	MaxAge      int    // days to retain rotated files
	Compress    bool   // gzip rotated files
}

// DefaultConfig returns the logger configuration for an environment
func DefaultConfig(env string) *Config {
	switch env {
	case "production", "prod":
		return &Config{
			Environment: "production",
			Level:       "info",
			Filename:    "logs/taskdeck.log",
			MaxSize:     200,
			MaxBackups:  10,
			MaxAge:      30,
			Compress:    true,
		}
	case "testing", "test":
		return &Config{Environment: "testing", Level: "debug"}
	default:
		return &Config{Environment: "development", Level: "debug"}
	}
}

// Init initializes the global logger. Subsequent calls are no-ops.
func Init(cfg *Config) error {
	var err error
	once.Do(func() {
		err = initLogger(cfg)
	})
	return err
}

// InitFromEnv initializes the global logger from APP_ENV, with LOG_LEVEL
// and LOG_FILE overrides
func InitFromEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	cfg := DefaultConfig(env)
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.Filename = file
	}
	return Init(cfg)
}

func initLogger(cfg *Config) error {
	var logger *zap.Logger
	var err error

	level := parseLogLevel(cfg.Level)
	if cfg.Environment == "production" {
		logger = newProductionLogger(cfg, level)
	} else {
		logger, err = newDevelopmentLogger(level)
	}
	if err != nil {
		return err
	}

	globalLogger = logger
	return nil
}

func newProductionLogger(cfg *Config, level zapcore.Level) *zap.Logger {
	writer := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(writer),
		level,
	)

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("environment", cfg.Environment),
			zap.String("service", "taskdeck"),
		),
	)
}

func newDevelopmentLogger(level zapcore.Level) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(level)
	return config.Build()
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
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

// Get returns the global logger, or a no-op logger before Init
func Get() *zap.Logger {
	if globalLogger != nil {
		return globalLogger
	}
	return zap.NewNop()
}

// Named returns a named logger from the global logger
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// Sync flushes any buffered log entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
