package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"coursepay/internal/repository"
)

const jobTimeout = 30 * time.Second

// CheckoutExpirer returns abandoned checkouts to the cart.
type CheckoutExpirer interface {
	ExpireStaleCheckouts(ctx context.Context, cutoff time.Time) (int64, error)
}

// CallbackSummarizer counts callback outcomes.
type CallbackSummarizer interface {
	SummarizeSince(ctx context.Context, since time.Time) ([]repository.DispositionCount, error)
}

// SummaryReporter publishes the daily callback summary.
type SummaryReporter interface {
	ReportDailySummary(ctx context.Context, rows []repository.DispositionCount)
}

// Scheduler manages all cron jobs.
type Scheduler struct {
	cron        *cron.Cron
	logger      *zap.Logger
	orders      CheckoutExpirer
	callbacks   CallbackSummarizer
	reporter    SummaryReporter
	checkoutTTL time.Duration
	extra       []job
	now         func() time.Time
}

type job struct {
	spec string
	name string
	fn   func()
}

// New creates a new cron scheduler. A paying order whose checkout started
// more than checkoutTTL ago is considered abandoned.
func New(orders CheckoutExpirer, callbacks CallbackSummarizer, reporter SummaryReporter, checkoutTTL time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		logger:      logger,
		orders:      orders,
		callbacks:   callbacks,
		reporter:    reporter,
		checkoutTTL: checkoutTTL,
		now:         time.Now,
	}
}

// WithJob registers an additional job started with the built-in ones.
func (s *Scheduler) WithJob(spec, name string, fn func()) *Scheduler {
	s.extra = append(s.extra, job{spec: spec, name: name, fn: fn})
	return s
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting cron scheduler...")

	// Expire abandoned checkouts - every minute
	if _, err := s.cron.AddFunc("0 * * * * *", func() {
		s.logger.Debug("Running: expire stale checkouts")
		s.expireCheckouts()
	}); err != nil {
		return err
	}

	// Daily callback report - at 23:45
	if _, err := s.cron.AddFunc("0 45 23 * * *", func() {
		s.logger.Debug("Running: daily callback report")
		s.dailyCallbackReport()
	}); err != nil {
		return err
	}

	for _, j := range s.extra {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() {
			defer s.recoverFromPanic(j.name)
			s.logger.Debug("Running: " + j.name)
			j.fn()
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("Cron scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) expireCheckouts() {
	defer s.recoverFromPanic("expireCheckouts")

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.checkoutTTL)
	n, err := s.orders.ExpireStaleCheckouts(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to expire stale checkouts", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("Expired stale checkouts", zap.Int64("orders", n), zap.Time("cutoff", cutoff))
	}
}

func (s *Scheduler) dailyCallbackReport() {
	defer s.recoverFromPanic("dailyCallbackReport")

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	rows, err := s.callbacks.SummarizeSince(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		s.logger.Error("Failed to summarize callbacks", zap.Error(err))
		return
	}
	s.reporter.ReportDailySummary(ctx, rows)
}

func (s *Scheduler) recoverFromPanic(jobName string) {
	if r := recover(); r != nil {
		s.logger.Error("Cron job panicked", zap.String("job", jobName), zap.Any("error", r))
	}
}
