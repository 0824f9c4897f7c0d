package logger

import (
	"go.uber.org/zap"
)

func New(service string) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{"stdout"}
	config.DisableStacktrace = true
	config.InitialFields = map[string]any{
		"service": service,
	}

	l, err := config.Build()
	if err != nil {
		return zap.NewNop().Sugar(), err
	}

	return l.Sugar(), nil
}
