package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"slidebot/models"

	"go.uber.org/zap"
)

const (
	targetFormat = "pdf"
	// waitDelay bounds how long Wait blocks on inherited pipes after a kill.
	waitDelay = 5 * time.Second
)

// LibreOfficeService runs a headless office suite to convert staged inputs
// into the FileStore's outbound directory.
type LibreOfficeService struct {
	command string
	files   *FileStore
	timeout time.Duration
	logger  *zap.Logger
}

func NewLibreOfficeService(command string, files *FileStore, timeout time.Duration, logger *zap.Logger) *LibreOfficeService {
	return &LibreOfficeService{
		command: command,
		files:   files,
		timeout: timeout,
		logger:  logger,
	}
}

// Convert runs the engine on inputPath. It never returns an error: every
// fault is folded into the result. Success requires a zero exit status and
// the output file at FileStore.ResultPath.
func (l *LibreOfficeService) Convert(ctx context.Context, inputPath string) models.ConversionResult {
	outputPath := l.files.ResultPath(inputPath)

	// A stale file at outputPath would pass the existence check below.
	if err := l.files.Cleanup(outputPath); err != nil {
		return models.ConversionResult{
			Err: fmt.Errorf("failed to clear previous output %s: %w", outputPath, err),
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, l.command,
		"--headless",
		"--convert-to", targetFormat,
		"--outdir", l.files.OutboundDir(),
		inputPath,
	)
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	startTime := time.Now()
	err := cmd.Run()
	duration := time.Since(startTime)
	stderrText := strings.TrimSpace(stderr.String())

	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		l.discardPartial(outputPath)
		return models.ConversionResult{
			Stderr:   stderrText,
			TimedOut: true,
			Err:      fmt.Errorf("engine exceeded %s", l.timeout),
		}
	}

	if err != nil {
		l.discardPartial(outputPath)
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return models.ConversionResult{
			Stderr: stderrText,
			Err:    fmt.Errorf("engine failed: %w", err),
		}
	}

	if _, statErr := os.Stat(outputPath); statErr != nil {
		return models.ConversionResult{
			Stderr: stderrText,
			Err:    fmt.Errorf("engine exited 0 but produced no output at %s", outputPath),
		}
	}

	l.logger.Debug("Engine finished",
		zap.String("input", inputPath),
		zap.Duration("duration", duration))

	return models.ConversionResult{
		Success:    true,
		OutputPath: outputPath,
		Stderr:     stderrText,
	}
}

func (l *LibreOfficeService) discardPartial(outputPath string) {
	if err := l.files.Cleanup(outputPath); err != nil {
		l.logger.Warn("Failed to remove partial output", zap.String("path", outputPath), zap.Error(err))
	}
}
