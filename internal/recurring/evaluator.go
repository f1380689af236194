package recurring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/casafin/expense-capture/internal/backend"
)

// ScheduleAPI is the slice of the backend contract the evaluator needs.
type ScheduleAPI interface {
	ListRecurring(ctx context.Context) ([]backend.RecurringSchedule, error)
	AutoExecuteRecurring(ctx context.Context) (*backend.AutoExecuteResult, error)
	ConvertOverdueToDebts(ctx context.Context) (*backend.ConvertResult, error)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Summary reports what a startup run did. Zero values everywhere when the
// guard suppressed the run.
type Summary struct {
	Ran                 bool
	ExecutedCount       int
	TransactionsCreated int
	ConvertedCount      int
}

// Evaluator runs the two unattended settlement passes at most once per
// process session. Both passes are idempotent against the backend's stored
// due dates: the client never advances a schedule locally, so a retried call
// cannot double-advance one.
type Evaluator struct {
	api        ScheduleAPI
	timeSource TimeSource

	mu  sync.Mutex
	ran bool
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(api ScheduleAPI) *Evaluator {
	return &Evaluator{
		api:        api,
		timeSource: &defaultTimeSource{},
	}
}

// NewEvaluatorWithDeps creates an Evaluator with a custom time source for testing.
func NewEvaluatorWithDeps(api ScheduleAPI, timeSrc TimeSource) *Evaluator {
	return &Evaluator{
		api:        api,
		timeSource: timeSrc,
	}
}

// RunStartupPasses executes the auto-execution pass and the overdue-to-debt
// pass. Every failure is logged and swallowed: these run unattended at
// launch and must never block the rest of the app from becoming usable.
// Repeated invocation is a no-op until Reset is called.
func (e *Evaluator) RunStartupPasses(ctx context.Context) Summary {
	e.mu.Lock()
	if e.ran {
		e.mu.Unlock()
		slog.Debug("Recurring passes already ran this session")
		return Summary{}
	}
	e.ran = true
	e.mu.Unlock()

	summary := Summary{Ran: true}
	e.logDue(ctx)

	if result, err := e.api.AutoExecuteRecurring(ctx); err != nil {
		slog.Error("Recurring auto-execution failed", "error", err)
	} else {
		summary.ExecutedCount = result.ExecutedCount
		summary.TransactionsCreated = result.TransactionsCreated
		if result.TransactionsCreated > 0 {
			slog.Info("Recurring schedules executed",
				"executed", result.ExecutedCount,
				"transactions_created", result.TransactionsCreated,
			)
		}
	}

	if result, err := e.api.ConvertOverdueToDebts(ctx); err != nil {
		slog.Error("Overdue-to-debt conversion failed", "error", err)
	} else {
		summary.ConvertedCount = result.ConvertedCount
		if result.ConvertedCount > 0 {
			slog.Info("Overdue obligations converted to debts",
				"converted", result.ConvertedCount,
			)
		}
	}

	return summary
}

// Reset clears the once-per-session guard, e.g. on an explicit refresh.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ran = false
}

// logDue records what is due before the passes run. Purely observational;
// the backend owns the authoritative due queries.
func (e *Evaluator) logDue(ctx context.Context) {
	schedules, err := e.api.ListRecurring(ctx)
	if err != nil {
		slog.Warn("Could not list recurring schedules", "error", err)
		return
	}

	automatic, manual := Due(schedules, e.timeSource.Now())
	if len(automatic) > 0 || len(manual) > 0 {
		slog.Info("Recurring schedules due",
			"automatic", len(automatic),
			"manual", len(manual),
		)
	}
}
