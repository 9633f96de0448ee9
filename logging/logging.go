// Package logging builds the structured loggers used across ranstack.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/sarchlab/ranstack/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Names of the component loggers.
const (
	SchedulerLogger = "SCHED"
	CUCPLogger      = "CU-CP"
)

// New creates a logr.Logger backed by zap. Verbosity 0 logs JSON at info
// level, 1 uses the console encoder, 2 enables debug (V(1)) messages and 3
// turns on development mode.
func New(cfg config.LogConfig) (logr.Logger, error) {
	zapConfig := zapConfigFor(cfg.Verbosity)

	zapConfig.InitialFields = map[string]interface{}{
		"service": cfg.Service,
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return logr.Discard(), fmt.Errorf("building zap logger: %w", err)
	}

	return zapr.NewLogger(zapLogger), nil
}

func zapConfigFor(verbosity int) zap.Config {
	var zapConfig zap.Config

	switch {
	case verbosity <= 0:
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level.SetLevel(zap.InfoLevel)
	case verbosity == 1:
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level.SetLevel(zap.InfoLevel)
	case verbosity == 2:
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level.SetLevel(zap.DebugLevel)
	default:
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level.SetLevel(zap.DebugLevel)
		zapConfig.Development = true
	}

	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapConfig
}

// Scheduler returns the logger of the MAC scheduler components.
func Scheduler(root logr.Logger) logr.Logger {
	return root.WithName(SchedulerLogger)
}

// CUCP returns the logger of the CU-CP procedures.
func CUCP(root logr.Logger) logr.Logger {
	return root.WithName(CUCPLogger)
}
