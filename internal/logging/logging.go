// Package logging constructs the single structured logger threaded through
// every component constructor. The teacher's own pkg/utils/logger.go never
// got past a doc comment recommending zap; this is that implementation.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger for the given level ("debug"|"info"|"warn"|"error")
// and format ("json"|"console").
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var encoderCfg zapcore.EncoderConfig
	var encoder zapcore.Encoder
	encoderCfg = zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "console":
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case "json", "":
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// Nop returns a logger that discards everything, for tests that don't want
// log noise but still need to satisfy a *zap.Logger parameter.
func Nop() *zap.Logger { return zap.NewNop() }
