// Package notify delivers the result of a reconciliation run to its owner.
package notify

import (
	"context"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/summary"
	"rent-reconciliation-service/pkg/logger"
)

// Message is what a run hands to a notifier. The notifier decides how to render it.
type Message struct {
	RunID     string
	Month     models.Month
	ReconLogs []models.PropertyReconLog
	MiscLogs  []models.MiscExpenseLog
	Managers  []models.ManagerSummary
}

// Notifier delivers a run summary.
type Notifier interface {
	Notify(ctx context.Context, msg *Message) error
}

// LogNotifier writes the summary to a logger.
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier returns a notifier that logs instead of sending.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.OrGlobal(log).WithComponent("notify")}
}

// Notify logs one line for the run and one per property that did not match.
func (n *LogNotifier) Notify(_ context.Context, msg *Message) error {
	s := summary.Summarize(msg.ReconLogs)
	n.logger.WithFields(logger.Fields{
		"run_id":      msg.RunID,
		"month":       msg.Month.String(),
		"properties":  s.PropertyCount,
		"matched":     s.StatusCounts[models.StatusMatched],
		"discrepancy": s.StatusCounts[models.StatusDiscrepancy],
		"missing":     s.StatusCounts[models.StatusMissing],
		"misc":        len(msg.MiscLogs),
	}).Info("Reconciliation summary")

	for _, l := range msg.ReconLogs {
		if l.Status == models.StatusMatched {
			continue
		}
		n.logger.WithFields(logger.Fields{
			"address":           l.Address,
			"status":            l.Status,
			"rent_variance":     l.RentVariance.StringFixed(2),
			"hoa_variance":      l.HOAVariance.StringFixed(2),
			"mortgage_variance": l.MortgageVariance.StringFixed(2),
		}).Warn("Property needs review")
	}
	return nil
}
