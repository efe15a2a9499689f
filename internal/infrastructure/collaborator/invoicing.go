package collaborator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoicingClient creates invoices and reads their settlement state
type InvoicingClient struct {
	client *Client
}

// NewInvoicingClient creates a new invoicing client
func NewInvoicingClient(client *Client) *InvoicingClient {
	return &InvoicingClient{client: client}
}

type createInvoiceRequest struct {
	SubscriptionRef string          `json:"subscription_ref"`
	Amount          decimal.Decimal `json:"amount"`
	DueDate         string          `json:"due_date"`
}

type createInvoiceResponse struct {
	InvoiceRef string `json:"invoice_ref"`
}

type invoiceStatusResponse struct {
	Paid               bool            `json:"paid"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
}

// CreateInvoice implements renewal.Invoicing
func (c *InvoicingClient) CreateInvoice(ctx context.Context, subscriptionRef string, amount decimal.Decimal, dueDate time.Time, idempotencyKey string) (string, error) {
	req := createInvoiceRequest{
		SubscriptionRef: subscriptionRef,
		Amount:          amount,
		DueDate:         shared.FormatDate(dueDate),
	}
	var resp createInvoiceResponse
	if err := c.client.do(ctx, http.MethodPost, "/invoices", idempotencyKey, req, &resp); err != nil {
		return "", shared.NewProcessingError("INVOICE_CREATE_FAILED", "create invoice", err)
	}
	if resp.InvoiceRef == "" {
		return "", shared.NewProcessingError("INVOICE_CREATE_FAILED", "create invoice", fmt.Errorf("%w: empty invoice reference", ErrRejected))
	}
	return resp.InvoiceRef, nil
}

// GetInvoiceStatus implements renewal.Invoicing
func (c *InvoicingClient) GetInvoiceStatus(ctx context.Context, invoiceRef string) (*renewal.InvoiceStatus, error) {
	var resp invoiceStatusResponse
	if err := c.client.do(ctx, http.MethodGet, "/invoices/"+url.PathEscape(invoiceRef), "", nil, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.NewProcessingError("INVOICE_STATUS_FAILED", "read invoice status", err)
	}
	return &renewal.InvoiceStatus{
		Paid:               resp.Paid,
		OutstandingBalance: resp.OutstandingBalance,
	}, nil
}

var _ renewal.Invoicing = (*InvoicingClient)(nil)
