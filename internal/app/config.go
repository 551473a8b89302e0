package app

import (
	"errors"
	"fmt"

	"github.com/vk/taskgrid/internal/executor"
	"github.com/vk/taskgrid/internal/queue"
)

// Config holds everything an App instance needs to run. String fields left
// empty defer to the grid's settings block, then to executor defaults.
type Config struct {
	GridPath string

	LogFormat string
	LogLevel  string

	Workers           int
	Policy            string
	QueueCapacity     int
	RejectionPolicy   string
	ShutdownPolicy    string
	MonitorIntervalMs int64
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GridPath == "" {
		return nil, errors.New("GridPath is a required configuration field and cannot be empty")
	}
	if cfg.Policy != "" {
		if _, err := queue.ParsePolicy(cfg.Policy); err != nil {
			return nil, fmt.Errorf("invalid policy: %w", err)
		}
	}
	if cfg.RejectionPolicy != "" {
		if _, err := executor.ParseRejectionPolicy(cfg.RejectionPolicy); err != nil {
			return nil, fmt.Errorf("invalid rejection-policy: %w", err)
		}
	}
	if cfg.ShutdownPolicy != "" {
		if _, err := executor.ParseShutdownPolicy(cfg.ShutdownPolicy); err != nil {
			return nil, fmt.Errorf("invalid shutdown-policy: %w", err)
		}
	}
	return &cfg, nil
}
