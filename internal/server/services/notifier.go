package services

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Notifier is told about accounts created on first federated login, e.g. to
// send a welcome message. It never receives the generated password.
type Notifier interface {
	NotifyProvisioned(ctx context.Context, account *models.Account) error
}

// LogNotifier only logs the event.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("module", "notifier")}
}

func (n *LogNotifier) NotifyProvisioned(ctx context.Context, account *models.Account) error {
	n.log.Info(ctx, "account provisioned", "account_id", account.ID, "username", account.Username)
	return nil
}
