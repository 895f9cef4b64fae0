package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig is the logging section.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console

	// File, when set, receives a JSON copy of every entry, rotated by size.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// NewLogger builds the process logger from the logging section of v.
// Entries go to stderr and, when logging.file is set, to a rotated file.
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	lc := LogConfig{Level: "info", Format: "json"}
	if err := New(v).Sub("logging").Unmarshal(&lc); err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	return lc.Build()
}

// Build returns a logger for lc.
func (lc LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	enc, err := lc.encoder()
	if err != nil {
		return nil, err
	}

	lvl := zap.NewAtomicLevelAt(level)
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	if lc.File != "" {
		file := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
			Compress:   lc.Compress,
		}
		core = zapcore.NewTee(core,
			zapcore.NewCore(zapcore.NewJSONEncoder(jsonEncoderConfig()), zapcore.AddSync(file), lvl))
	}
	return zap.New(core, zap.AddCaller()), nil
}

func (lc LogConfig) encoder() (zapcore.Encoder, error) {
	switch lc.Format {
	case "", "json":
		return zapcore.NewJSONEncoder(jsonEncoderConfig()), nil
	case "console":
		return zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), nil
	default:
		return nil, fmt.Errorf("logging.format %q: want json or console", lc.Format)
	}
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}
