package run

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger builds the zap logger selected by the global flags.
func logger(c *cli.Context) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.String("loglvl"))
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	if c.Bool("dev") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
