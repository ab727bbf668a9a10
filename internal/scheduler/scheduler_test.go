package scheduler_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerly/internal/clock"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	"github.com/smallbiznis/partnerly/internal/scheduler"
	"go.uber.org/zap"
)

type stubPayoutService struct {
	runCalls    int
	resumeCalls int
	runErr      error
	resumeErr   error
}

func (s *stubPayoutService) RunPayouts(ctx context.Context, asOf time.Time) (payoutdomain.RunResult, error) {
	s.runCalls++
	return payoutdomain.RunResult{}, s.runErr
}

func (s *stubPayoutService) ResumeTransfers(ctx context.Context) (int, error) {
	s.resumeCalls++
	return 0, s.resumeErr
}

func (s *stubPayoutService) MarkPayoutPaid(ctx context.Context, req payoutdomain.SettleRequest) (*payoutdomain.AffiliatePayout, error) {
	return nil, payoutdomain.ErrPayoutNotFound
}

func (s *stubPayoutService) MarkPayoutFailed(ctx context.Context, req payoutdomain.SettleRequest) (*payoutdomain.AffiliatePayout, error) {
	return nil, payoutdomain.ErrPayoutNotFound
}

func (s *stubPayoutService) GetPayoutDetail(ctx context.Context, payoutID snowflake.ID) (*payoutdomain.PayoutDetail, error) {
	return nil, payoutdomain.ErrPayoutNotFound
}

func (s *stubPayoutService) ListPayouts(ctx context.Context, req payoutdomain.ListRequest) (payoutdomain.ListResponse, error) {
	return payoutdomain.ListResponse{}, nil
}

func newScheduler(t *testing.T, payoutSvc payoutdomain.Service, cfg scheduler.Config) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(scheduler.Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)),
		PayoutSvc: payoutSvc,
		Config:    cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestRunOnceRunsAllJobs(t *testing.T) {
	payoutSvc := &stubPayoutService{}
	s := newScheduler(t, payoutSvc, scheduler.Config{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if payoutSvc.runCalls != 1 || payoutSvc.resumeCalls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", payoutSvc.runCalls, payoutSvc.resumeCalls)
	}
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	payoutSvc := &stubPayoutService{}
	s := newScheduler(t, payoutSvc, scheduler.Config{
		EnabledJobs: []string{"Transfer_Resume"},
	})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if payoutSvc.runCalls != 0 {
		t.Fatalf("payout_run calls = %d, want 0 when disabled", payoutSvc.runCalls)
	}
	if payoutSvc.resumeCalls != 1 {
		t.Fatalf("transfer_resume calls = %d, want 1", payoutSvc.resumeCalls)
	}
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	payoutSvc := &stubPayoutService{
		runErr: errors.New("provider unavailable"),
	}
	s := newScheduler(t, payoutSvc, scheduler.Config{})

	err := s.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected job error to propagate")
	}
	if !strings.Contains(err.Error(), "payout_run") {
		t.Fatalf("error should name the failing job: %v", err)
	}
	// The failing job must not stop the remaining jobs.
	if payoutSvc.resumeCalls != 1 {
		t.Fatalf("transfer_resume calls = %d, want 1", payoutSvc.resumeCalls)
	}
}

func TestRunOnceTreatsTimeoutAsSoftFailure(t *testing.T) {
	payoutSvc := &stubPayoutService{
		runErr: context.DeadlineExceeded,
	}
	s := newScheduler(t, payoutSvc, scheduler.Config{})

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("timeout should be swallowed, got %v", err)
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := scheduler.New(scheduler.Params{
		Log:   zap.NewNop(),
		Clock: clock.NewFakeClock(time.Now()),
	})
	if err != scheduler.ErrInvalidConfig {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}
