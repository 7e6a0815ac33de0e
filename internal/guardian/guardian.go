package guardian

import (
	"context"
	"time"

	"github.com/nimasrn/submit-logger/pkg/logger"
	"github.com/nimasrn/submit-logger/pkg/prom"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultBaseDelay = 100 * time.Millisecond
	DefaultMaxDelay  = 10 * time.Second
)

// Connection is a store handle that can be checked and replaced.
type Connection interface {
	Probe(ctx context.Context) error
	Reconnect(ctx context.Context) error
}

type Config struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// MaxAttempts bounds reconnect attempts, 0 retries until ctx is done.
	MaxAttempts uint64
}

// Guardian makes sure the store is reachable before each write. It never
// gives up on its own: a caller only sees an error when ctx ends or
// MaxAttempts is exhausted.
type Guardian struct {
	conn   Connection
	config Config
}

func New(conn Connection, config Config) *Guardian {
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultMaxDelay
	}
	return &Guardian{conn: conn, config: config}
}

func (g *Guardian) backoff() retry.Backoff {
	b := retry.NewExponential(g.config.BaseDelay)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithCappedDuration(g.config.MaxDelay, b)
	if g.config.MaxAttempts > 0 {
		b = retry.WithMaxRetries(g.config.MaxAttempts, b)
	}
	return b
}

// Ensure probes the connection and, if the probe fails, replaces the handle
// until a fresh one answers.
func (g *Guardian) Ensure(ctx context.Context) error {
	err := g.conn.Probe(ctx)
	if err == nil {
		return nil
	}
	logger.Warn("store probe failed, reconnecting", "error", err)

	attempt := 0
	err = retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
		attempt++
		prom.IncStoreReconnect()
		if err := g.conn.Reconnect(ctx); err != nil {
			logger.Warn("store reconnect failed", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		if err := g.conn.Probe(ctx); err != nil {
			logger.Warn("store probe failed after reconnect", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		logger.Error("store is still unreachable", "attempts", attempt, "error", err)
		return err
	}

	logger.Info("store connection recovered", "attempts", attempt)
	return nil
}
