// Package notification tells borrowers about changes to their loans.
package notification

import (
	"context"
	"log/slog"

	"github.com/susubank/susubank/internal/money"
)

// Loan lifecycle events delivered to the borrower.
const (
	KindLoanApproved  = "loan_approved"
	KindLoanRejected  = "loan_rejected"
	KindLoanDisbursed = "loan_disbursed"
	KindLoanCompleted = "loan_completed"
	KindLoanDefaulted = "loan_defaulted"
)

// Message is one loan event addressed to a borrower. Body is the human
// readable text; the loan fields let a delivery channel template its own.
type Message struct {
	Kind        string
	RecipientID string
	LoanID      string
	LoanNumber  string
	LoanStatus  string
	Outstanding money.Amount
	Body        string
}

// Notifier delivers loan events. Delivery happens after the ledger commit, so
// a failed send never undoes a money movement.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes each event as a structured log line. It stands in for
// an SMS or email channel.
type LoggerNotifier struct {
	logger *slog.Logger
}

func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

func (n *LoggerNotifier) Send(ctx context.Context, m Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.LogAttrs(ctx, slog.LevelInfo, "borrower notified",
		slog.String("kind", m.Kind),
		slog.String("recipient_id", m.RecipientID),
		slog.Group("loan",
			slog.String("id", m.LoanID),
			slog.String("number", m.LoanNumber),
			slog.String("status", m.LoanStatus),
			slog.String("outstanding", m.Outstanding.String()),
		),
		slog.String("body", m.Body),
	)
	return nil
}
