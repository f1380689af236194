package recurring

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/casafin/expense-capture/internal/backend"
)

// mockScheduleAPI is a mock implementation of the ScheduleAPI interface
type mockScheduleAPI struct {
	schedules  []backend.RecurringSchedule
	listErr    error
	autoResult *backend.AutoExecuteResult
	autoErr    error
	autoCalls  int
	convResult *backend.ConvertResult
	convErr    error
	convCalls  int
}

func (m *mockScheduleAPI) ListRecurring(ctx context.Context) ([]backend.RecurringSchedule, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.schedules, nil
}

func (m *mockScheduleAPI) AutoExecuteRecurring(ctx context.Context) (*backend.AutoExecuteResult, error) {
	m.autoCalls++
	if m.autoErr != nil {
		return nil, m.autoErr
	}
	return m.autoResult, nil
}

func (m *mockScheduleAPI) ConvertOverdueToDebts(ctx context.Context) (*backend.ConvertResult, error) {
	m.convCalls++
	if m.convErr != nil {
		return nil, m.convErr
	}
	return m.convResult, nil
}

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}

var _ = Describe("Evaluator", func() {
	var (
		api       *mockScheduleAPI
		evaluator *Evaluator
		ctx       context.Context
	)

	BeforeEach(func() {
		api = &mockScheduleAPI{
			autoResult: &backend.AutoExecuteResult{ExecutedCount: 2, TransactionsCreated: 3},
			convResult: &backend.ConvertResult{ConvertedCount: 1},
		}
		evaluator = NewEvaluatorWithDeps(api, &stubClock{now: day(2025, 3, 15)})
		ctx = context.Background()
	})

	It("runs both passes and reports their counts", func() {
		summary := evaluator.RunStartupPasses(ctx)

		Expect(summary.Ran).To(BeTrue())
		Expect(summary.ExecutedCount).To(Equal(2))
		Expect(summary.TransactionsCreated).To(Equal(3))
		Expect(summary.ConvertedCount).To(Equal(1))
		Expect(api.autoCalls).To(Equal(1))
		Expect(api.convCalls).To(Equal(1))
	})

	It("runs at most once per session", func() {
		evaluator.RunStartupPasses(ctx)
		summary := evaluator.RunStartupPasses(ctx)

		Expect(summary.Ran).To(BeFalse())
		Expect(api.autoCalls).To(Equal(1))
		Expect(api.convCalls).To(Equal(1))
	})

	It("runs again after Reset", func() {
		evaluator.RunStartupPasses(ctx)
		evaluator.Reset()
		summary := evaluator.RunStartupPasses(ctx)

		Expect(summary.Ran).To(BeTrue())
		Expect(api.autoCalls).To(Equal(2))
	})

	It("swallows an auto-execution failure and still converts", func() {
		api.autoErr = errors.New("backend down")

		summary := evaluator.RunStartupPasses(ctx)

		Expect(summary.Ran).To(BeTrue())
		Expect(summary.ExecutedCount).To(BeZero())
		Expect(summary.ConvertedCount).To(Equal(1))
		Expect(api.convCalls).To(Equal(1))
	})

	It("swallows a conversion failure", func() {
		api.convErr = errors.New("backend down")

		summary := evaluator.RunStartupPasses(ctx)

		Expect(summary.Ran).To(BeTrue())
		Expect(summary.ExecutedCount).To(Equal(2))
		Expect(summary.ConvertedCount).To(BeZero())
	})

	It("tolerates a failing schedule listing", func() {
		api.listErr = errors.New("backend down")

		summary := evaluator.RunStartupPasses(ctx)

		Expect(summary.Ran).To(BeTrue())
		Expect(api.autoCalls).To(Equal(1))
	})
})
