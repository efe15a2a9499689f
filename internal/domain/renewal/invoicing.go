package renewal

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the settlement state of an invoice
type InvoiceStatus struct {
	Paid               bool            `json:"paid"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
}

// Invoicing is the external invoicing system.
//
// CreateInvoice is idempotent on idempotencyKey: repeating a key returns the
// invoice created by the first call.
type Invoicing interface {
	CreateInvoice(ctx context.Context, subscriptionRef string, amount decimal.Decimal, dueDate time.Time, idempotencyKey string) (string, error)
	GetInvoiceStatus(ctx context.Context, invoiceRef string) (*InvoiceStatus, error)
}
