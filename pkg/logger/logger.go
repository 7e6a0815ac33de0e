package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the subset handed to libraries that want a printf style sink,
// fasthttp among them.
type Logger interface {
	Info(msg string, values ...any)
	Warn(msg string, values ...any)
	Error(msg string, values ...any)
	Debug(msg string, values ...any)
	Printf(format string, args ...interface{})
}

func init() {
	if _, err := NewLogger(configFromEnv()); err != nil {
		panic(err)
	}
}

// configFromEnv picks the production encoder when APP_ENV (or the older
// LOG_ENV) says so and honours LOG_LEVEL when it parses.
func configFromEnv() zap.Config {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("LOG_ENV")
	}

	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := zapcore.ParseLevel(lvl); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(parsed)
		}
	}
	cfg.InitialFields = map[string]interface{}{"service": "submit-logger"}
	return cfg
}

func Info(msg string, values ...any)  { GetLogger().Info(msg, values...) }
func Warn(msg string, values ...any)  { GetLogger().Warn(msg, values...) }
func Error(msg string, values ...any) { GetLogger().Error(msg, values...) }
func Debug(msg string, values ...any) { GetLogger().Debug(msg, values...) }

func Panic(msg string, values ...any) {
	GetLogger().log.Panicw(msg, values...)
}

// Sync flushes buffered entries, call it before the process exits.
func Sync() {
	_ = GetLogger().log.Sync()
}
