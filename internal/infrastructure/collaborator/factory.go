package collaborator

import (
	appsub "github.com/ams/backend/internal/application/subscription"
	"github.com/ams/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewCollaborators builds the outbound ports from configuration. A
// collaborator without a base URL gets its in-memory stand-in.
func NewCollaborators(cfg config.CollaboratorsConfig, logger *zap.Logger) (appsub.Collaborators, error) {
	clientFor := func(name, baseURL string) (*Client, error) {
		if baseURL == "" {
			logger.Warn("Collaborator not configured, using in-memory stand-in", zap.String("collaborator", name))
			return nil, nil
		}
		return NewClient(name, ClientConfig{
			BaseURL:         baseURL,
			APIKey:          cfg.APIKey,
			Timeout:         cfg.Timeout,
			MaxRetries:      cfg.MaxRetries,
			RetryMaxElapsed: cfg.RetryMaxElapsed,
		}, logger)
	}

	var out appsub.Collaborators

	c, err := clientFor("directory", cfg.DirectoryURL)
	if err != nil {
		return out, err
	}
	if c != nil {
		out.Directory = NewDirectoryClient(c)
	} else {
		out.Directory = NewMemoryDirectory()
	}

	if c, err = clientFor("invoicing", cfg.InvoicingURL); err != nil {
		return out, err
	}
	if c != nil {
		out.Invoicing = NewInvoicingClient(c)
	} else {
		out.Invoicing = NewMemoryInvoicing()
	}

	if c, err = clientFor("ledger", cfg.LedgerURL); err != nil {
		return out, err
	}
	if c != nil {
		out.Ledger = NewLedgerClient(c)
	} else {
		out.Ledger = NewMemoryLedger()
	}

	if c, err = clientFor("notification", cfg.NotificationURL); err != nil {
		return out, err
	}
	if c != nil {
		out.Notifier = NewNotificationClient(c)
	} else {
		out.Notifier = NewLogNotifier(logger)
	}

	return out, nil
}
