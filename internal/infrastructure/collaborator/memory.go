package collaborator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ams/backend/internal/domain/renewal"
	"github.com/ams/backend/internal/domain/revenue"
	"github.com/ams/backend/internal/domain/shared"
	"github.com/ams/backend/internal/domain/subscription"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MemoryDirectory is an in-process directory. Unknown references are
// reported as active subscribers unless Strict is set.
type MemoryDirectory struct {
	Strict bool

	mu          sync.RWMutex
	subscribers map[string]subscription.SubscriberInfo
}

// NewMemoryDirectory creates an empty in-memory directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{subscribers: make(map[string]subscription.SubscriberInfo)}
}

// Put adds or replaces a subscriber
func (d *MemoryDirectory) Put(info subscription.SubscriberInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[info.Ref] = info
}

// GetSubscriber implements subscription.Directory
func (d *MemoryDirectory) GetSubscriber(_ context.Context, ref string) (*subscription.SubscriberInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if info, ok := d.subscribers[ref]; ok {
		return &info, nil
	}
	if d.Strict {
		return nil, shared.ErrNotFound
	}
	return &subscription.SubscriberInfo{Ref: ref, Status: subscription.SubscriberActive, PortalEligible: true}, nil
}

type memoryInvoice struct {
	ref     string
	amount  decimal.Decimal
	dueDate time.Time
	paid    bool
}

// MemoryInvoicing is an in-process invoicing system, idempotent on key
type MemoryInvoicing struct {
	mu       sync.Mutex
	seq      int
	byKey    map[string]string
	invoices map[string]*memoryInvoice
}

// NewMemoryInvoicing creates an empty in-memory invoicing system
func NewMemoryInvoicing() *MemoryInvoicing {
	return &MemoryInvoicing{
		byKey:    make(map[string]string),
		invoices: make(map[string]*memoryInvoice),
	}
}

// CreateInvoice implements renewal.Invoicing
func (m *MemoryInvoicing) CreateInvoice(_ context.Context, _ string, amount decimal.Decimal, dueDate time.Time, idempotencyKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref, ok := m.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		return ref, nil
	}
	m.seq++
	ref := fmt.Sprintf("INV-%06d", m.seq)
	m.invoices[ref] = &memoryInvoice{ref: ref, amount: amount, dueDate: dueDate}
	if idempotencyKey != "" {
		m.byKey[idempotencyKey] = ref
	}
	return ref, nil
}

// GetInvoiceStatus implements renewal.Invoicing
func (m *MemoryInvoicing) GetInvoiceStatus(_ context.Context, invoiceRef string) (*renewal.InvoiceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceRef]
	if !ok {
		return nil, shared.ErrNotFound
	}
	status := &renewal.InvoiceStatus{Paid: inv.paid, OutstandingBalance: inv.amount}
	if inv.paid {
		status.OutstandingBalance = decimal.Zero
	}
	return status, nil
}

// MarkPaid settles an invoice
func (m *MemoryInvoicing) MarkPaid(invoiceRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[invoiceRef]
	if !ok {
		return shared.ErrNotFound
	}
	inv.paid = true
	return nil
}

// MemoryLedger keeps posted entries in memory, one per idempotency key
type MemoryLedger struct {
	mu      sync.Mutex
	entries []revenue.JournalEntry
	keys    map[string]struct{}
}

// NewMemoryLedger creates an empty in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{keys: make(map[string]struct{})}
}

// PostJournalEntry implements revenue.Ledger
func (l *MemoryLedger) PostJournalEntry(_ context.Context, entry revenue.JournalEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.keys[entry.IdempotencyKey]; dup {
		return nil
	}
	l.keys[entry.IdempotencyKey] = struct{}{}
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of the posted entries
func (l *MemoryLedger) Entries() []revenue.JournalEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]revenue.JournalEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// LogNotifier writes reminders to the log instead of delivering them
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendReminder implements subscription.Notifier
func (n *LogNotifier) SendReminder(_ context.Context, subscriberRef, templateID string, data map[string]any) error {
	n.logger.Info("Reminder (not delivered)",
		zap.String("subscriber_ref", subscriberRef),
		zap.String("template_id", templateID),
		zap.Any("context", data),
	)
	return nil
}

var (
	_ subscription.Directory = (*MemoryDirectory)(nil)
	_ renewal.Invoicing      = (*MemoryInvoicing)(nil)
	_ revenue.Ledger         = (*MemoryLedger)(nil)
	_ subscription.Notifier  = (*LogNotifier)(nil)
)
