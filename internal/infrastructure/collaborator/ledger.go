package collaborator

import (
	"context"
	"net/http"

	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LedgerClient posts journal entries to the general ledger
type LedgerClient struct {
	client *Client
}

// NewLedgerClient creates a new ledger client
func NewLedgerClient(client *Client) *LedgerClient {
	return &LedgerClient{client: client}
}

type journalEntryRequest struct {
	DebitAccount  string          `json:"debit_account"`
	CreditAccount string          `json:"credit_account"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Date          string          `json:"date"`
	Memo          string          `json:"memo,omitempty"`
}

// PostJournalEntry implements revenue.Ledger
func (l *LedgerClient) PostJournalEntry(ctx context.Context, entry revenue.JournalEntry) error {
	req := journalEntryRequest{
		DebitAccount:  entry.DebitAccount,
		CreditAccount: entry.CreditAccount,
		Amount:        entry.Amount,
		Currency:      string(entry.Currency),
		Date:          shared.FormatDate(entry.Date),
		Memo:          entry.Memo,
	}
	if err := l.client.do(ctx, http.MethodPost, "/journal-entries", entry.IdempotencyKey, req, nil); err != nil {
		return shared.NewProcessingError("LEDGER_POST_FAILED", "post journal entry "+entry.IdempotencyKey, err)
	}
	return nil
}

var _ revenue.Ledger = (*LedgerClient)(nil)
