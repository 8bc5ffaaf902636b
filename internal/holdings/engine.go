package holdings

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Engine periodically materializes every account.
type Engine struct {
	logger       *zap.Logger
	accounts     AccountSource
	materializer *Materializer
	interval     time.Duration
}

// NewEngine creates a new materialization engine.
func NewEngine(logger *zap.Logger, accounts AccountSource, materializer *Materializer, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Engine{
		logger:       logger.Named("engine"),
		accounts:     accounts,
		materializer: materializer,
		interval:     interval,
	}
}

// Run materializes all accounts immediately and then on every tick until
// ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("Starting materialization loop", zap.Duration("interval", e.interval))
	e.runLogged(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping materialization engine...")
			return
		case <-ticker.C:
			e.runLogged(ctx)
		}
	}
}

func (e *Engine) runLogged(ctx context.Context) {
	if _, err := e.RunOnce(ctx); err != nil {
		e.logger.Error("Materialization pass finished with errors", zap.Error(err))
	}
}

// RunOnce materializes every account once.
func (e *Engine) RunOnce(ctx context.Context) ([]Result, error) {
	ids, err := e.accounts.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list accounts: %w", err)
	}

	start := time.Now()
	results, err := e.materializer.MaterializeAll(ctx, ids)
	rows := 0
	for _, r := range results {
		rows += r.Rows
	}
	e.logger.Info("Materialization pass complete",
		zap.Int("accounts", len(ids)),
		zap.Int("succeeded", len(results)),
		zap.Int("rows", rows),
		zap.Duration("took", time.Since(start)),
	)
	return results, err
}
