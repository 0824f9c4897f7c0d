package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Store struct {
		Path string `envconfig:"STORE_PATH" default:"memopress-store"`
	}
	Ledger struct {
		Path string `envconfig:"LEDGER_PATH" default:"memopress-ledger"`
	}
	Chunking struct {
		TargetChars  int `envconfig:"TARGET_CHUNK_CHARS" default:"900"`
		MaxUnitBytes int `envconfig:"MAX_UNIT_BYTES" default:"1200"`
	}
	Retry struct {
		MaxAttempts int           `envconfig:"MAX_SUBMIT_ATTEMPTS" default:"3"`
		Delay       time.Duration `envconfig:"RETRY_DELAY" default:"500ms"`
	}
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("MEMOPRESS", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
