package revenue

import (
	"context"
	"time"

	"github.com/ams/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// JournalEntry is a balanced two-line posting
type JournalEntry struct {
	DebitAccount   string               `json:"debit_account"`
	CreditAccount  string               `json:"credit_account"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       valueobject.Currency `json:"currency"`
	Date           time.Time            `json:"date"`
	IdempotencyKey string               `json:"idempotency_key"`
	Memo           string               `json:"memo,omitempty"`
}

// Ledger is the external general ledger.
//
// PostJournalEntry must be idempotent on IdempotencyKey: posting the same
// key twice records one entry. Transport failures are returned as errors
// and the caller retries with the same key.
type Ledger interface {
	PostJournalEntry(ctx context.Context, entry JournalEntry) error
}
