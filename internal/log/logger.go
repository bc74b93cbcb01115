package log

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. "prod" gets JSON output at info level,
// everything else a coloured console encoder at debug level. FOLIO_LOG_LEVEL
// overrides the level in either mode.
func NewLogger(env string) (*zap.Logger, error) {
	var config zap.Config

	if env == "prod" {
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if raw := strings.TrimSpace(os.Getenv("FOLIO_LOG_LEVEL")); raw != "" {
		level, err := zap.ParseAtomicLevel(strings.ToLower(raw))
		if err != nil {
			return nil, err
		}
		config.Level = level
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	config.InitialFields = map[string]interface{}{"service": "folio"}

	return config.Build()
}

func NewSugar(env string) (*zap.SugaredLogger, error) {
	logger, err := NewLogger(env)
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Named returns a child logger scoped to a component, tolerating a nil parent.
func Named(logger *zap.SugaredLogger, component string) *zap.SugaredLogger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger.Named(component)
}
