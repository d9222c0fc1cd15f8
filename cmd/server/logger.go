package main

import (
	"github.com/plantbox/plantbox-api/internal/config"
	"github.com/plantbox/plantbox-api/internal/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		_ = logger.Sync()
	}))
	return logger, nil
}
