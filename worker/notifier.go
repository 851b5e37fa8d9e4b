package worker

import (
	"context"

	"slidebot/models"

	"go.uber.org/zap"
)

// Notifier forwards job metadata and results to the observer. Every method
// is best-effort: faults are logged and swallowed.
type Notifier struct {
	transport  Transport
	observerID int64
	logger     *zap.Logger
}

func NewNotifier(transport Transport, observerID int64, logger *zap.Logger) *Notifier {
	return &Notifier{transport: transport, observerID: observerID, logger: logger}
}

// Enabled reports whether activity by sender is reported to the observer.
// The observer's own activity never is.
func (n *Notifier) Enabled(sender int64) bool {
	return n.observerID != 0 && sender != n.observerID
}

// Admission sends a short summary of the sender followed by a forward of the
// inbound message.
func (n *Notifier) Admission(ctx context.Context, msg models.Inbound) {
	if !n.Enabled(msg.SenderID) {
		return
	}
	if err := n.transport.SendText(ctx, n.observerID, admissionSummary(msg.SenderName, msg.SenderID)); err != nil {
		n.logger.Warn("Observer notification failed", zap.Int64("sender_id", msg.SenderID), zap.Error(err))
		return
	}
	if err := n.transport.Forward(ctx, msg.Ref, n.observerID); err != nil {
		n.logger.Warn("Observer forward failed", zap.Int64("sender_id", msg.SenderID), zap.Error(err))
	}
}

// Copy sends the observer a courtesy copy of a finished result.
func (n *Notifier) Copy(ctx context.Context, job *models.ConversionJob) {
	if !n.Enabled(job.RequesterID) {
		return
	}
	err := n.transport.SendFile(ctx, n.observerID, job.OutputPath, job.ResultFilename(), copyCaption(job.RequesterName))
	if err != nil {
		n.logger.Warn("Observer copy failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}
