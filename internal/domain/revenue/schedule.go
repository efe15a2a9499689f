package revenue

import (
	"fmt"
	"time"

	"github.com/ams/backend/internal/domain/billing"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineStatus is the state of a recognition line
type LineStatus string

const (
	LineStatusPending    LineStatus = "pending"
	LineStatusRecognized LineStatus = "recognized"
)

// IsValid checks if the status is a valid LineStatus
func (s LineStatus) IsValid() bool {
	return s == LineStatusPending || s == LineStatusRecognized
}

// RecognitionLine is one slice of a schedule, recognized on its last day
type RecognitionLine struct {
	ID             uuid.UUID       `json:"id"`
	ScheduleID     uuid.UUID       `json:"schedule_id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	Sequence       int             `json:"sequence"`
	LineStart      time.Time       `json:"line_start"`
	LineEnd        time.Time       `json:"line_end"`
	Amount         decimal.Decimal `json:"amount"`
	Status         LineStatus      `json:"status"`
	RecognizedDate *time.Time      `json:"recognized_date,omitempty"`
	FailureCount   int             `json:"failure_count"`
	LastError      string          `json:"last_error,omitempty"`
	LastFailedAt   *time.Time      `json:"last_failed_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RecognitionDate is the date the line becomes due (its last service day)
func (l *RecognitionLine) RecognitionDate() time.Time {
	return l.LineEnd
}

// IsDue reports whether the line is pending and its recognition date has
// been reached as of asOf
func (l *RecognitionLine) IsDue(asOf time.Time) bool {
	return l.Status == LineStatusPending && !l.LineEnd.After(shared.TruncateDay(asOf))
}

// IdempotencyKey is the ledger key of the line's posting
func (l *RecognitionLine) IdempotencyKey() string {
	return "revrec:" + l.ID.String()
}

// MarkRecognized moves the line to recognized. Recognized lines never
// change again.
func (l *RecognitionLine) MarkRecognized(asOf time.Time) error {
	if l.Status != LineStatusPending {
		return shared.NewValidationError("INVALID_STATE",
			fmt.Sprintf("Cannot recognize line %d in %s status", l.Sequence, l.Status))
	}
	l.Status = LineStatusRecognized
	l.RecognizedDate = shared.DatePtr(asOf)
	l.LastError = ""
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordFailure keeps the line pending and notes the posting error
func (l *RecognitionLine) RecordFailure(err error, at time.Time) {
	l.FailureCount++
	l.LastError = err.Error()
	failedAt := at.UTC()
	l.LastFailedAt = &failedAt
	l.UpdatedAt = failedAt
}

// RevenueSchedule spreads one paid period's amount over recognition lines
type RevenueSchedule struct {
	shared.BaseAggregateRoot
	SubscriptionID uuid.UUID                 `json:"subscription_id"`
	TotalAmount    decimal.Decimal           `json:"total_amount"`
	Currency       valueobject.Currency      `json:"currency"`
	Method         billing.RecognitionMethod `json:"recognition_method"`
	// PeriodStart is inclusive, PeriodEnd exclusive (the paid-through date)
	PeriodStart time.Time              `json:"period_start"`
	PeriodEnd   time.Time              `json:"period_end"`
	Interval    billing.Duration       `json:"recognition_interval"`
	Accounts    billing.LedgerAccounts `json:"ledger_accounts"`
	Lines       []RecognitionLine      `json:"lines"`
}

// ScheduleInput describes a paid period to be recognized over time
type ScheduleInput struct {
	SubscriptionID uuid.UUID
	TotalAmount    decimal.Decimal
	Currency       valueobject.Currency
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Interval       billing.Duration
	Accounts       billing.LedgerAccounts
}

// NewDeferredSchedule cuts [PeriodStart, PeriodEnd) into lines of one
// interval each (the last one clipped at the period end) and splits the
// total so that the lines sum to it exactly.
func NewDeferredSchedule(in ScheduleInput) (*RevenueSchedule, error) {
	start := shared.TruncateDay(in.PeriodStart)
	end := shared.TruncateDay(in.PeriodEnd)
	if !end.After(start) {
		return nil, shared.NewValidationError("INVALID_PERIOD", "Recognition period end must be after its start")
	}
	if in.TotalAmount.IsNegative() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Recognition amount cannot be negative")
	}
	if err := in.Interval.Validate(); err != nil {
		return nil, err
	}
	if !in.Accounts.IsComplete() {
		return nil, shared.NewConfigurationError("MISSING_LEDGER_ACCOUNT", "Deferred recognition requires both ledger accounts")
	}
	currency := in.Currency
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}

	ranges := cutLines(start, end, in.Interval)
	total, err := valueobject.NewMoney(in.TotalAmount, currency)
	if err != nil {
		return nil, err
	}
	amounts, err := total.SplitRemainderLast(len(ranges))
	if err != nil {
		return nil, err
	}

	s := &RevenueSchedule{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SubscriptionID:    in.SubscriptionID,
		TotalAmount:       in.TotalAmount,
		Currency:          currency,
		Method:            billing.RecognitionDeferred,
		PeriodStart:       start,
		PeriodEnd:         end,
		Interval:          in.Interval,
		Accounts:          in.Accounts,
		Lines:             make([]RecognitionLine, len(ranges)),
	}
	for i, r := range ranges {
		s.Lines[i] = RecognitionLine{
			ID:             uuid.New(),
			ScheduleID:     s.ID,
			SubscriptionID: in.SubscriptionID,
			Sequence:       i + 1,
			LineStart:      r.Start,
			LineEnd:        r.End,
			Amount:         amounts[i].Amount(),
			Status:         LineStatusPending,
			UpdatedAt:      s.CreatedAt,
		}
	}
	s.AddDomainEvent(NewScheduleCreatedEvent(s))
	return s, nil
}

// cutLines returns inclusive day ranges covering [start, end). Each cut is
// computed from start so month-end anchors do not drift.
func cutLines(start, end time.Time, interval billing.Duration) []billing.DateRange {
	lastDay := shared.AddDays(end, -1)
	var out []billing.DateRange
	for i := 0; ; i++ {
		lineStart := interval.AddIntervals(start, i)
		if !lineStart.Before(end) {
			break
		}
		lineEnd := shared.AddDays(interval.AddIntervals(start, i+1), -1)
		if lineEnd.After(lastDay) {
			lineEnd = lastDay
		}
		out = append(out, billing.DateRange{Start: lineStart, End: lineEnd})
	}
	return out
}

// Sum returns the total of all line amounts
func (s *RevenueSchedule) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range s.Lines {
		sum = sum.Add(l.Amount)
	}
	return sum
}

// DueLines returns the pending lines due as of asOf, in sequence order
func (s *RevenueSchedule) DueLines(asOf time.Time) []*RecognitionLine {
	var due []*RecognitionLine
	for i := range s.Lines {
		if s.Lines[i].IsDue(asOf) {
			due = append(due, &s.Lines[i])
		}
	}
	return due
}

// RecognizedAmount is the sum of recognized lines
func (s *RevenueSchedule) RecognizedAmount() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range s.Lines {
		if l.Status == LineStatusRecognized {
			sum = sum.Add(l.Amount)
		}
	}
	return sum
}

// EntryFor builds the journal entry that recognizes line
func (s *RevenueSchedule) EntryFor(line *RecognitionLine, postingDate time.Time) JournalEntry {
	return JournalEntry{
		DebitAccount:   s.Accounts.DeferredRevenueAccount,
		CreditAccount:  s.Accounts.RevenueAccount,
		Amount:         line.Amount,
		Currency:       s.Currency,
		Date:           shared.TruncateDay(postingDate),
		IdempotencyKey: line.IdempotencyKey(),
		Memo: fmt.Sprintf("Revenue recognition %s to %s",
			shared.FormatDate(line.LineStart), shared.FormatDate(line.LineEnd)),
	}
}

// ImmediateEntry is the single posting of an immediately recognized period
func ImmediateEntry(subscriptionID uuid.UUID, periodStart time.Time, amount decimal.Decimal, currency valueobject.Currency, accounts billing.LedgerAccounts, postingDate time.Time) JournalEntry {
	return JournalEntry{
		DebitAccount:   accounts.DeferredRevenueAccount,
		CreditAccount:  accounts.RevenueAccount,
		Amount:         amount,
		Currency:       currency,
		Date:           shared.TruncateDay(postingDate),
		IdempotencyKey: fmt.Sprintf("revrec:immediate:%s:%s", subscriptionID, shared.FormatDate(periodStart)),
		Memo:           "Immediate revenue recognition from " + shared.FormatDate(periodStart),
	}
}
