// Package logging provides zap logger helpers and the in-memory log ring
// served by the recent-logs endpoint.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	logger, err := buildConfig(development).Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// NewWithRing builds a logger whose output is additionally captured in a
// bounded Ring so recent entries can be served over HTTP.
func NewWithRing(development bool, ringSize int) (*zap.Logger, *Ring, error) {
	ring := NewRing(ringSize)
	logger, err := buildConfig(development).Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, newRingCore(ring, zapcore.InfoLevel))
	}))
	if err != nil {
		return nil, nil, fmt.Errorf("build ring logger: %w", err)
	}
	return logger, ring, nil
}

func buildConfig(development bool) zap.Config {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg
}
