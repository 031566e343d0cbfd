package ssdp

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Second

// Discoverer runs complete discovery rounds. Rounds never share sockets,
// so concurrent calls are safe.
type Discoverer struct {
	prober    *Prober
	collector *Collector
	logger    *zap.Logger
}

func NewDiscoverer(logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{
		prober:    NewProber(logger),
		collector: NewCollector(logger),
		logger:    logger,
	}
}

// WithProber replaces the prober, mainly for tests.
func (d *Discoverer) WithProber(p *Prober) *Discoverer {
	d.prober = p
	return d
}

// Discover runs one round bounded by timeout and by ctx's deadline,
// whichever ends first. Partial results on expiry are not an error.
func (d *Discoverer) Discover(ctx context.Context, timeout time.Duration) ([]Entry, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	started := time.Now()
	sockets, err := d.prober.Begin(deadline)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("discovery_round_start",
		zap.Int("sockets", len(sockets)),
		zap.Duration("timeout", time.Until(deadline)),
	)

	entries := d.collector.Collect(ctx, sockets, deadline)
	d.logger.Info("discovery_round_done",
		zap.Int("sockets", len(sockets)),
		zap.Int("entries", len(entries)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return entries, nil
}
