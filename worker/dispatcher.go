package worker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"slidebot/models"

	"go.uber.org/zap"
)

// acceptedExtensions are the presentation formats admitted to the pipeline.
var acceptedExtensions = []string{".ppt", ".pptx"}

// IsPresentation reports whether name carries an accepted extension,
// ignoring case.
func IsPresentation(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range acceptedExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Dispatcher routes inbound messages. Each message is handled on its own
// tracked goroutine so the receive loop never waits on the slot or the
// network.
type Dispatcher struct {
	pipeline   *Pipeline
	transport  Transport
	notifier   *Notifier
	limiter    *RateLimiter
	observerID int64
	logger     *zap.Logger

	wg     sync.WaitGroup
	active atomic.Int64
}

func NewDispatcher(pipeline *Pipeline, limiter *RateLimiter, observerID int64, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		pipeline:   pipeline,
		transport:  pipeline.transport,
		notifier:   pipeline.notifier,
		limiter:    limiter,
		observerID: observerID,
		logger:     logger,
	}
}

// Run consumes inbound until it is closed or ctx is done. It does not wait
// for spawned handlers; call Wait for that.
func (d *Dispatcher) Run(ctx context.Context, inbound <-chan models.Inbound) {
	d.logger.Info("Dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher shutting down")
			return
		case msg, ok := <-inbound:
			if !ok {
				d.logger.Info("Inbound stream closed")
				return
			}
			d.Handle(ctx, msg)
		}
	}
}

// Handle spawns a tracked handler for msg and returns immediately.
func (d *Dispatcher) Handle(ctx context.Context, msg models.Inbound) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Message handler panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()

		if msg.Document != nil {
			d.handleDocument(ctx, msg)
			return
		}
		d.handleText(ctx, msg)
	}()
}

// Wait blocks until every spawned handler has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Active is the number of jobs between admission and their terminal state.
func (d *Dispatcher) Active() int64 {
	return d.active.Load()
}

func (d *Dispatcher) handleDocument(ctx context.Context, msg models.Inbound) {
	logger := d.logger.With(zap.Int64("sender_id", msg.SenderID), zap.String("file", msg.Document.FileName))

	d.notifier.Admission(ctx, msg)

	if !IsPresentation(msg.Document.FileName) {
		logger.Info("Rejected non-presentation file")
		d.reply(ctx, logger, msg.Ref, msgRejected)
		return
	}

	if !d.limiter.Allow(msg.SenderID) {
		logger.Info("Rejected file over rate limit")
		d.reply(ctx, logger, msg.Ref, msgRateLimit)
		return
	}

	job := models.NewConversionJob(msg, d.observerID)
	logger.Info("Accepted job", zap.String("job_id", job.ID))

	d.active.Add(1)
	defer d.active.Add(-1)

	d.pipeline.Process(ctx, job)
}

func (d *Dispatcher) handleText(ctx context.Context, msg models.Inbound) {
	d.notifier.Admission(ctx, msg)
	if msg.SenderID == d.observerID {
		return
	}
	d.reply(ctx, d.logger.With(zap.Int64("sender_id", msg.SenderID)), msg.Ref, msgSendFile)
}

func (d *Dispatcher) reply(ctx context.Context, logger *zap.Logger, to models.MessageRef, text string) {
	tctx, cancel := d.pipeline.transportContext(ctx)
	defer cancel()
	if _, err := d.transport.Reply(tctx, to, text); err != nil {
		logger.Warn("Failed to reply", zap.Error(err))
	}
}
