package worker

import (
	"context"
	"fmt"
	"time"

	"slidebot/models"

	"go.uber.org/zap"
)

const recordTimeout = 5 * time.Second

type PipelineDeps struct {
	Transport Transport
	Files     Files
	Converter Converter
	Slot      Slot
	Notifier  *Notifier
	// Recorder and Archiver are optional.
	Recorder StatusRecorder
	Archiver Archiver
	// TransportTimeout bounds each download and chat API call. Zero means no
	// deadline beyond the caller's context.
	TransportTimeout time.Duration
	Logger           *zap.Logger
}

// Pipeline drives one job at a time through
// received -> queued -> converting -> uploading -> delivered, or failed.
// Everything from download to delivery runs while holding the slot.
type Pipeline struct {
	transport        Transport
	files            Files
	converter        Converter
	slot             Slot
	notifier         *Notifier
	recorder         StatusRecorder
	archiver         Archiver
	transportTimeout time.Duration
	logger           *zap.Logger
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewNotifier(deps.Transport, 0, deps.Logger)
	}
	return &Pipeline{
		transport:        deps.Transport,
		files:            deps.Files,
		converter:        deps.Converter,
		slot:             deps.Slot,
		notifier:         notifier,
		recorder:         deps.Recorder,
		archiver:         deps.Archiver,
		transportTimeout: deps.TransportTimeout,
		logger:           deps.Logger,
	}
}

// Process runs job to a terminal state. It never panics and always leaves
// the requester with either the result or one failure message.
func (p *Pipeline) Process(ctx context.Context, job *models.ConversionJob) {
	logger := p.logger.With(
		zap.String("job_id", job.ID),
		zap.Int64("requester_id", job.RequesterID),
		zap.String("file", job.OriginalFilename),
	)
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
			p.fail(ctx, logger, job, models.Fail(models.ReasonInternal, fmt.Errorf("panic: %v", r)))
		}
	}()

	p.setStatus(ctx, logger, job, models.StatusReceived)
	p.acknowledge(ctx, logger, job)

	if jobErr := p.runQueued(ctx, logger, job); jobErr != nil {
		p.fail(ctx, logger, job, jobErr)
		return
	}

	p.setStatus(ctx, logger, job, models.StatusDelivered)
	logger.Info("Conversion delivered", zap.Duration("duration", time.Since(startTime)))
}

func (p *Pipeline) acknowledge(ctx context.Context, logger *zap.Logger, job *models.ConversionJob) {
	tctx, cancel := p.transportContext(ctx)
	defer cancel()

	ref, err := p.transport.Reply(tctx, job.Source, msgReceived)
	if err != nil {
		logger.Warn("Failed to acknowledge job", zap.Error(err))
		return
	}
	job.StatusRef = &ref
}

func (p *Pipeline) runQueued(ctx context.Context, logger *zap.Logger, job *models.ConversionJob) *models.JobError {
	input, err := p.files.StagePath(job.OriginalFilename)
	if err != nil {
		return models.Fail(models.ReasonInvalidName, err)
	}
	job.InputPath = input

	p.setStatus(ctx, logger, job, models.StatusQueued)
	if err := p.slot.Acquire(ctx); err != nil {
		return models.Fail(models.ReasonCanceled, err)
	}
	defer p.slot.Release()
	defer p.cleanup(logger, job.InputPath)

	logger.Info("Job entered conversion slot")
	return p.runExclusive(ctx, logger, job)
}

// runExclusive is the critical section. The caller holds the slot.
func (p *Pipeline) runExclusive(ctx context.Context, logger *zap.Logger, job *models.ConversionJob) *models.JobError {
	p.setStatus(ctx, logger, job, models.StatusConverting)
	p.updateStatus(ctx, logger, job, msgConverting)

	if err := p.download(ctx, job); err != nil {
		return models.Fail(models.ReasonTransport, fmt.Errorf("download: %w", err))
	}

	result := p.converter.Convert(ctx, job.InputPath)
	if !result.Success {
		if result.Stderr != "" {
			logger.Info("Engine stderr", zap.String("stderr", result.Stderr))
		}
		switch {
		case ctx.Err() != nil:
			return models.Fail(models.ReasonCanceled, ctx.Err())
		case result.TimedOut:
			return models.Fail(models.ReasonConversionTimeout, result.Err)
		default:
			return models.Fail(models.ReasonConversion, result.Err)
		}
	}
	job.OutputPath = result.OutputPath
	defer p.cleanup(logger, job.OutputPath)

	p.setStatus(ctx, logger, job, models.StatusUploading)
	p.updateStatus(ctx, logger, job, msgUploading)

	if err := p.deliver(ctx, job); err != nil {
		return models.Fail(models.ReasonTransport, fmt.Errorf("deliver: %w", err))
	}

	p.notifier.Copy(ctx, job)
	p.archive(ctx, logger, job)

	if job.StatusRef != nil {
		tctx, cancel := p.transportContext(ctx)
		defer cancel()
		if err := p.transport.Delete(tctx, *job.StatusRef); err != nil {
			logger.Warn("Failed to remove status message", zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) download(ctx context.Context, job *models.ConversionJob) error {
	tctx, cancel := p.transportContext(ctx)
	defer cancel()
	return p.transport.Download(tctx, job.FileID, job.InputPath)
}

func (p *Pipeline) deliver(ctx context.Context, job *models.ConversionJob) error {
	tctx, cancel := p.transportContext(ctx)
	defer cancel()
	return p.transport.ReplyWithFile(tctx, job.Source, job.OutputPath, job.ResultFilename(), msgDone)
}

func (p *Pipeline) archive(ctx context.Context, logger *zap.Logger, job *models.ConversionJob) {
	if p.archiver == nil {
		return
	}
	tctx, cancel := p.transportContext(ctx)
	defer cancel()
	if err := p.archiver.Archive(tctx, job); err != nil {
		logger.Warn("Failed to archive result", zap.Error(err))
	}
}

// fail reports jobErr to the requester exactly once, by editing the status
// message or, when that is not possible, with a new reply.
func (p *Pipeline) fail(ctx context.Context, logger *zap.Logger, job *models.ConversionJob, jobErr *models.JobError) {
	switch jobErr.Reason {
	case models.ReasonConversionTimeout:
		logger.Error("Conversion timed out", zap.Error(jobErr.Err))
	case models.ReasonCanceled:
		logger.Warn("Job canceled", zap.Error(jobErr.Err))
	default:
		logger.Error("Conversion failed", zap.String("reason", string(jobErr.Reason)), zap.Error(jobErr.Err))
	}

	// Terminal feedback goes out even when the job's context is done.
	ctx = context.WithoutCancel(ctx)
	job.Error = jobErr.Error()
	p.setStatus(ctx, logger, job, models.StatusFailed)

	text := failureText(jobErr.Reason)
	tctx, cancel := p.transportContext(ctx)
	defer cancel()

	if job.StatusRef != nil {
		err := p.transport.EditStatus(tctx, *job.StatusRef, text)
		if err == nil {
			return
		}
		logger.Warn("Failed to edit status message", zap.Error(err))
	}
	if _, err := p.transport.Reply(tctx, job.Source, text); err != nil {
		logger.Error("Failed to report failure to requester", zap.Error(err))
	}
}

func (p *Pipeline) updateStatus(ctx context.Context, logger *zap.Logger, job *models.ConversionJob, text string) {
	if job.StatusRef == nil {
		return
	}
	tctx, cancel := p.transportContext(ctx)
	defer cancel()
	if err := p.transport.EditStatus(tctx, *job.StatusRef, text); err != nil {
		logger.Warn("Failed to update status message", zap.String("status", string(job.Status)), zap.Error(err))
	}
}

func (p *Pipeline) setStatus(ctx context.Context, logger *zap.Logger, job *models.ConversionJob, status models.Status) {
	job.Status = status
	job.UpdatedAt = time.Now()
	if p.recorder == nil {
		return
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := p.recorder.RecordStatus(rctx, job); err != nil {
		logger.Warn("Failed to record job status", zap.String("status", string(status)), zap.Error(err))
	}
}

func (p *Pipeline) cleanup(logger *zap.Logger, path string) {
	if err := p.files.Cleanup(path); err != nil {
		logger.Warn("Failed to remove job file", zap.String("path", path), zap.Error(err))
	}
}

func (p *Pipeline) transportContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.transportTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.transportTimeout)
}
