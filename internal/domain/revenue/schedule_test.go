package revenue

import (
	"errors"
	"testing"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAccounts = billing.LedgerAccounts{DeferredRevenueAccount: "2400", RevenueAccount: "4000"}

func buildSchedule(t *testing.T, total string, start, end time.Time, interval billing.Duration) *RevenueSchedule {
	t.Helper()
	s, err := NewDeferredSchedule(ScheduleInput{
		SubscriptionID: uuid.New(),
		TotalAmount:    decimal.RequireFromString(total),
		Currency:       valueobject.USD,
		PeriodStart:    start,
		PeriodEnd:      end,
		Interval:       interval,
		Accounts:       testAccounts,
	})
	require.NoError(t, err)
	return s
}

func TestNewDeferredSchedule_ScenarioB(t *testing.T) {
	s := buildSchedule(t, "1200.00", shared.Date(2024, 1, 1), shared.Date(2025, 1, 1), billing.MonthlyDuration())

	require.Len(t, s.Lines, 12)
	for i, l := range s.Lines {
		assert.Equal(t, i+1, l.Sequence)
		assert.Equal(t, "100.00", l.Amount.StringFixed(2))
		assert.Equal(t, LineStatusPending, l.Status)
		assert.Equal(t, shared.Date(2024, time.Month(i+1), 1), l.LineStart)
	}
	assert.Equal(t, shared.Date(2024, 1, 31), s.Lines[0].LineEnd)
	assert.Equal(t, shared.Date(2024, 2, 29), s.Lines[1].LineEnd)
	assert.Equal(t, shared.Date(2024, 12, 31), s.Lines[11].LineEnd)

	due := s.DueLines(shared.Date(2024, 3, 1))
	require.Len(t, due, 2)
	assert.Equal(t, 1, due[0].Sequence)
	assert.Equal(t, 2, due[1].Sequence)

	for _, l := range due {
		require.NoError(t, l.MarkRecognized(shared.Date(2024, 3, 1)))
	}
	assert.Empty(t, s.DueLines(shared.Date(2024, 3, 1)), "recognized lines are never due again")
	assert.Equal(t, "200.00", s.RecognizedAmount().StringFixed(2))
	assert.Equal(t, LineStatusPending, s.Lines[2].Status)
}

func TestNewDeferredSchedule_Conservation(t *testing.T) {
	s := buildSchedule(t, "100.00", shared.Date(2024, 1, 1), shared.Date(2024, 4, 1), billing.MonthlyDuration())
	require.Len(t, s.Lines, 3)

	got := []string{s.Lines[0].Amount.StringFixed(2), s.Lines[1].Amount.StringFixed(2), s.Lines[2].Amount.StringFixed(2)}
	assert.Equal(t, []string{"33.33", "33.33", "33.34"}, got)
	assert.True(t, s.Sum().Equal(decimal.RequireFromString("100.00")))

	totals := []string{"0.01", "999.99", "1234.57", "50"}
	intervals := []billing.Duration{billing.MonthlyDuration(), {Value: 1, Unit: billing.UnitWeek}, {Value: 10, Unit: billing.UnitDay}}
	for _, total := range totals {
		for _, interval := range intervals {
			s := buildSchedule(t, total, shared.Date(2024, 1, 31), shared.Date(2025, 1, 31), interval)
			assert.True(t, s.Sum().Equal(decimal.RequireFromString(total)), "%s over %s", total, interval)
		}
	}
}

func TestNewDeferredSchedule_ClipsLastLine(t *testing.T) {
	s := buildSchedule(t, "45.00", shared.Date(2024, 1, 1), shared.Date(2024, 2, 15), billing.MonthlyDuration())
	require.Len(t, s.Lines, 2)
	assert.Equal(t, shared.Date(2024, 1, 31), s.Lines[0].LineEnd)
	assert.Equal(t, shared.Date(2024, 2, 1), s.Lines[1].LineStart)
	assert.Equal(t, shared.Date(2024, 2, 14), s.Lines[1].LineEnd)
}

func TestNewDeferredSchedule_MonthEndAnchor(t *testing.T) {
	s := buildSchedule(t, "300.00", shared.Date(2024, 1, 31), shared.Date(2024, 4, 30), billing.MonthlyDuration())
	require.Len(t, s.Lines, 3)
	assert.Equal(t, shared.Date(2024, 2, 28), s.Lines[0].LineEnd)
	assert.Equal(t, shared.Date(2024, 2, 29), s.Lines[1].LineStart)
	assert.Equal(t, shared.Date(2024, 3, 31), s.Lines[2].LineStart)
	assert.Equal(t, shared.Date(2024, 4, 29), s.Lines[2].LineEnd)
}

func TestNewDeferredSchedule_Errors(t *testing.T) {
	base := ScheduleInput{
		SubscriptionID: uuid.New(),
		TotalAmount:    decimal.NewFromInt(100),
		PeriodStart:    shared.Date(2024, 1, 1),
		PeriodEnd:      shared.Date(2024, 2, 1),
		Interval:       billing.MonthlyDuration(),
		Accounts:       testAccounts,
	}

	in := base
	in.PeriodEnd = in.PeriodStart
	_, err := NewDeferredSchedule(in)
	assert.True(t, shared.IsValidation(err))

	in = base
	in.Accounts = billing.LedgerAccounts{}
	_, err = NewDeferredSchedule(in)
	assert.True(t, shared.IsConfiguration(err))

	in = base
	in.Interval = billing.Duration{}
	_, err = NewDeferredSchedule(in)
	assert.True(t, shared.IsConfiguration(err))

	in = base
	s, err := NewDeferredSchedule(in)
	require.NoError(t, err)
	assert.Equal(t, valueobject.USD, s.Currency)
}

func TestRecognitionLine_Lifecycle(t *testing.T) {
	s := buildSchedule(t, "100.00", shared.Date(2024, 1, 1), shared.Date(2024, 2, 1), billing.MonthlyDuration())
	line := &s.Lines[0]

	assert.False(t, line.IsDue(shared.Date(2024, 1, 30)))
	assert.True(t, line.IsDue(shared.Date(2024, 1, 31)))

	at := time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC)
	line.RecordFailure(errors.New("ledger down"), at)
	line.RecordFailure(errors.New("ledger still down"), at)
	assert.Equal(t, 2, line.FailureCount)
	assert.Equal(t, "ledger still down", line.LastError)
	assert.True(t, line.IsDue(shared.Date(2024, 2, 1)))

	require.NoError(t, line.MarkRecognized(shared.Date(2024, 2, 1)))
	assert.Empty(t, line.LastError)
	assert.True(t, shared.IsValidation(line.MarkRecognized(shared.Date(2024, 2, 2))))
	assert.Equal(t, shared.Date(2024, 2, 1), *line.RecognizedDate)
}

func TestEntries(t *testing.T) {
	s := buildSchedule(t, "100.00", shared.Date(2024, 1, 1), shared.Date(2024, 2, 1), billing.MonthlyDuration())
	entry := s.EntryFor(&s.Lines[0], time.Date(2024, 2, 1, 5, 0, 0, 0, time.UTC))
	assert.Equal(t, "2400", entry.DebitAccount)
	assert.Equal(t, "4000", entry.CreditAccount)
	assert.Equal(t, "revrec:"+s.Lines[0].ID.String(), entry.IdempotencyKey)
	assert.Equal(t, shared.Date(2024, 2, 1), entry.Date)

	subID := uuid.New()
	imm := ImmediateEntry(subID, shared.Date(2024, 1, 1), decimal.NewFromInt(50), valueobject.USD, testAccounts, shared.Date(2024, 1, 1))
	assert.Equal(t, "revrec:immediate:"+subID.String()+":2024-01-01", imm.IdempotencyKey)
	assert.True(t, imm.Amount.Equal(decimal.NewFromInt(50)))
}
