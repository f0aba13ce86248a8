package logx

import (
	"go.uber.org/zap"
)

// L is the process logger. It stays a no-op until Init runs so packages
// can log from tests without setup.
var L = zap.NewNop()

func Init(env string) {
	cfg := zap.NewProductionConfig()

	// Local dev readability
	if env != "prod" {
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	L = logger
}

func Sync() {
	_ = L.Sync()
}
