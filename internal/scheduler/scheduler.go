// Package scheduler runs the periodic free-credit refresh sweep.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/chofesh/model-gateway/internal/credit"
)

// Scheduler owns the cron jobs of the gateway. The per-request RefreshIfDue
// check stays authoritative; the sweep keeps idle accounts from drifting.
type Scheduler struct {
	cron   *cron.Cron
	ledger *credit.Ledger
	logger *slog.Logger
}

// New creates a scheduler with the refresh sweep registered on spec
// (standard five-field cron syntax).
func New(ledger *credit.Ledger, spec string, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		ledger: ledger,
		logger: logger,
	}
	_, err := s.cron.AddFunc(spec, s.refreshSweep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) refreshSweep() {
	s.logger.Debug("running credit refresh sweep")
	if err := s.ledger.RefreshAll(context.Background()); err != nil {
		s.logger.Error("credit refresh sweep failed", "error", err.Error())
	}
}
