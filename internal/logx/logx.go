package logx

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"strings"
)

// New builds the process logger: JSON, ISO8601 timestamps and a service.name
// field on every entry. level "debug" switches to the development config.
func New(service, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(level, "debug") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		if lvl, err := zapcore.ParseLevel(level); err == nil && level != "" {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service.name", service)), nil
}
