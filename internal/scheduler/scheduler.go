package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/partnerly/internal/clock"
	obsmetrics "github.com/smallbiznis/partnerly/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	PayoutSvc payoutdomain.Service
	Config    Config `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	payoutSvc payoutdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.PayoutSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		payoutSvc: p.PayoutSvc,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	schedMetrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Soft timeout: the run is idempotent, the next tick picks up
		// whatever was left unfinished.
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"payout_run", s.isJobEnabled("payout_run"), func(ctx context.Context) error {
			return s.runJob(ctx, "payout_run", s.PayoutRunJob)
		}},
		{"transfer_resume", s.isJobEnabled("transfer_resume"), func(ctx context.Context) error {
			return s.runJob(ctx, "transfer_resume", s.TransferResumeJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) PayoutRunJob(ctx context.Context) error {
	result, err := s.payoutSvc.RunPayouts(ctx, s.clock.Now())
	if result.BatchesCreated > 0 || result.EntriesHeld > 0 {
		s.log.Info("payout run finished",
			zap.Int("batches_created", result.BatchesCreated),
			zap.Int("entries_approved", result.EntriesApproved),
			zap.Int("entries_held", result.EntriesHeld),
			zap.Int("transfers_resumed", result.TransfersResumed),
		)
	}
	return err
}

func (s *Scheduler) TransferResumeJob(ctx context.Context) error {
	resumed, err := s.payoutSvc.ResumeTransfers(ctx)
	if resumed > 0 {
		s.log.Info("resumed stalled transfers", zap.Int("resumed", resumed))
	}
	return err
}
