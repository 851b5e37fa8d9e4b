package worker

import (
	"context"
	"errors"

	"slidebot/models"
)

// Transport is the subset of the chat API the bot needs.
type Transport interface {
	Download(ctx context.Context, fileID string, dest string) error
	Reply(ctx context.Context, to models.MessageRef, text string) (models.MessageRef, error)
	ReplyWithFile(ctx context.Context, to models.MessageRef, path, filename, caption string) error
	SendText(ctx context.Context, chatID int64, text string) error
	SendFile(ctx context.Context, chatID int64, path, filename, caption string) error
	EditStatus(ctx context.Context, ref models.MessageRef, text string) error
	Delete(ctx context.Context, ref models.MessageRef) error
	Forward(ctx context.Context, ref models.MessageRef, target int64) error
}

// Files stages inputs and removes job files.
type Files interface {
	StagePath(originalFilename string) (string, error)
	Cleanup(path string) error
}

// Converter runs the conversion engine. It reports every fault through the
// result.
type Converter interface {
	Convert(ctx context.Context, inputPath string) models.ConversionResult
}

// StatusRecorder observes job status transitions.
type StatusRecorder interface {
	RecordStatus(ctx context.Context, job *models.ConversionJob) error
}

// Recorders fans a transition out to several recorders.
type Recorders []StatusRecorder

func (r Recorders) RecordStatus(ctx context.Context, job *models.ConversionJob) error {
	var errs []error
	for _, rec := range r {
		if err := rec.RecordStatus(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Archiver keeps a copy of a delivered result.
type Archiver interface {
	Archive(ctx context.Context, job *models.ConversionJob) error
}
