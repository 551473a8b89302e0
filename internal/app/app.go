// Package app encapsulates the taskgrid application: configuration, logger
// construction, grid loading, and the execution run loop.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/grid"
)

// App holds the application's dependencies and configuration for one run.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	model  *grid.Model
}

// NewApp constructs the application: it builds an isolated logger and loads
// and evaluates the grid. A failure to load the grid is a fatal startup
// error returned to the caller.
func NewApp(outW io.Writer, config *Config) (*App, error) {
	logger := newLogger(config.LogLevel, config.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := grid.Load(ctx, config.GridPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load grid: %w", err)
	}
	logger.Debug("Grid loaded.", "tasks", len(model.Tasks))

	return &App{
		outW:   outW,
		logger: logger,
		config: config,
		model:  model,
	}, nil
}

// Model returns the loaded grid model. This is primarily for testing.
func (a *App) Model() *grid.Model {
	return a.model
}
