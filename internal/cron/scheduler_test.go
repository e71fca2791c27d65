package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"coursepay/internal/repository"
)

type fakeExpirer struct {
	cutoff time.Time
	n      int64
	err    error
	panics bool
}

func (f *fakeExpirer) ExpireStaleCheckouts(_ context.Context, cutoff time.Time) (int64, error) {
	if f.panics {
		panic("boom")
	}
	f.cutoff = cutoff
	return f.n, f.err
}

type fakeSummarizer struct {
	since time.Time
	rows  []repository.DispositionCount
	err   error
}

func (f *fakeSummarizer) SummarizeSince(_ context.Context, since time.Time) ([]repository.DispositionCount, error) {
	f.since = since
	return f.rows, f.err
}

type fakeReporter struct {
	calls int
	rows  []repository.DispositionCount
}

func (f *fakeReporter) ReportDailySummary(_ context.Context, rows []repository.DispositionCount) {
	f.calls++
	f.rows = rows
}

func newTestScheduler(orders CheckoutExpirer, callbacks CallbackSummarizer, reporter SummaryReporter, logger *zap.Logger) *Scheduler {
	s := New(orders, callbacks, reporter, 20*time.Minute, logger)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestScheduler_ExpireCheckouts(t *testing.T) {
	t.Run("UsesCheckoutTTLCutoff", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		orders := &fakeExpirer{n: 2}
		s := newTestScheduler(orders, &fakeSummarizer{}, &fakeReporter{}, zap.New(core))

		s.expireCheckouts()

		assert.Equal(t, time.Date(2026, 3, 1, 11, 40, 0, 0, time.UTC), orders.cutoff)
		assert.Equal(t, 1, logs.FilterMessage("Expired stale checkouts").Len())
	})

	t.Run("ErrorIsLogged", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s := newTestScheduler(&fakeExpirer{err: errors.New("db down")}, &fakeSummarizer{}, &fakeReporter{}, zap.New(core))

		s.expireCheckouts()

		assert.Equal(t, 1, logs.FilterMessage("Failed to expire stale checkouts").Len())
	})

	t.Run("PanicIsRecovered", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s := newTestScheduler(&fakeExpirer{panics: true}, &fakeSummarizer{}, &fakeReporter{}, zap.New(core))

		assert.NotPanics(t, s.expireCheckouts)
		require.Equal(t, 1, logs.FilterMessage("Cron job panicked").Len())
		assert.Equal(t, "expireCheckouts", logs.All()[0].ContextMap()["job"])
	})
}

func TestScheduler_DailyCallbackReport(t *testing.T) {
	t.Run("ReportsLastDay", func(t *testing.T) {
		rows := []repository.DispositionCount{{Disposition: "capture", Total: 4}}
		summarizer := &fakeSummarizer{rows: rows}
		reporter := &fakeReporter{}
		s := newTestScheduler(&fakeExpirer{}, summarizer, reporter, zap.NewNop())

		s.dailyCallbackReport()

		assert.Equal(t, time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC), summarizer.since)
		assert.Equal(t, 1, reporter.calls)
		assert.Equal(t, rows, reporter.rows)
	})

	t.Run("SkipsReportOnError", func(t *testing.T) {
		reporter := &fakeReporter{}
		s := newTestScheduler(&fakeExpirer{}, &fakeSummarizer{err: errors.New("db down")}, reporter, zap.NewNop())

		s.dailyCallbackReport()

		assert.Zero(t, reporter.calls)
	})
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler(&fakeExpirer{}, &fakeSummarizer{}, &fakeReporter{}, zap.NewNop()).
		WithJob("0 */5 * * * *", "cleanup", func() {})
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 3)
	<-s.Stop().Done()
}

func TestScheduler_InvalidExtraJob(t *testing.T) {
	s := newTestScheduler(&fakeExpirer{}, &fakeSummarizer{}, &fakeReporter{}, zap.NewNop()).
		WithJob("not a cron expression", "broken", func() {})
	assert.Error(t, s.Start())
}
