package di

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds a zap logger from cfg.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := cfg.level()
	if err != nil {
		return nil, err
	}

	if cfg.File != "" {
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:  cfg.File,
			MaxAge:    30,
			MaxSize:   10,
			LocalTime: true,
		})
		encoder := zap.NewProductionEncoderConfig()
		encoder.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoder), writer, zap.NewAtomicLevelAt(level))
		return zap.New(core, zap.AddCaller()), nil
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
