// Package runner executes one sessionizing run: fetch, window, submit.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vincentbai/browsetrace-sessions/internal/logger"
	"github.com/vincentbai/browsetrace-sessions/internal/models"
	"github.com/vincentbai/browsetrace-sessions/internal/sessionize"
	"github.com/vincentbai/browsetrace-sessions/internal/sink"
)

type Source interface {
	Fetch(ctx context.Context) ([]models.Event, error)
}

type Sink interface {
	Submit(ctx context.Context, result models.Result) (sink.Receipt, error)
}

// Summary reports what a run produced.
type Summary struct {
	RunID    string
	Events   int
	Visitors int
	Sessions int
	Receipt  sink.Receipt
}

type Runner struct {
	source  Source
	sink    Sink
	options sessionize.Options
	log     logger.Logger
}

func New(src Source, dst Sink, options sessionize.Options, log logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{source: src, sink: dst, options: options, log: log}
}

// Run performs a single pass. Any failure aborts the run; nothing is
// submitted unless every event was read and windowed.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	log := r.log.With(logger.String("run_id", summary.RunID))
	ctx = logger.WithContext(ctx, log)
	started := time.Now()

	events, err := r.source.Fetch(ctx)
	if err != nil {
		log.Error("Failed to fetch events", logger.Error(err))
		return summary, fmt.Errorf("fetch events: %w", err)
	}
	summary.Events = len(events)
	log.Info("Events fetched", logger.Int("events", summary.Events))

	result := sessionize.Run(events, r.options)
	summary.Visitors = len(result.SessionByUser)
	for _, sessions := range result.SessionByUser {
		summary.Sessions += len(sessions)
	}
	log.Info("Sessions computed",
		logger.Int("visitors", summary.Visitors),
		logger.Int("sessions", summary.Sessions),
	)

	receipt, err := r.sink.Submit(ctx, result)
	summary.Receipt = receipt
	if err != nil {
		log.Error("Failed to submit sessions", logger.Error(err), logger.Int("status", receipt.StatusCode))
		return summary, fmt.Errorf("submit sessions: %w", err)
	}

	log.Info("Sessions submitted",
		logger.Int("status", receipt.StatusCode),
		logger.String("digest", receipt.Digest),
		logger.Int("bytes", receipt.Bytes),
		logger.Duration("elapsed", time.Since(started)),
	)
	return summary, nil
}
