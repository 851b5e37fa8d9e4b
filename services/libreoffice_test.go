package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeEngine writes a shell script standing in for the office suite. The
// script receives: --headless --convert-to pdf --outdir <dir> <input>.
func fakeEngine(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake engine requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fake-libreoffice")
	script := "#!/bin/sh\nargs=\"$*\"\noutdir=\"$5\"\ninput=\"$6\"\nbase=$(basename \"$input\")\nname=\"${base%.*}\"\n" + body
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake engine: %v", err)
	}
	return path
}

func stageInput(t *testing.T, store *FileStore, name string) string {
	t.Helper()

	input, err := store.StagePath(name)
	if err != nil {
		t.Fatalf("StagePath failed: %v", err)
	}
	if err := os.WriteFile(input, []byte("pptx"), 0644); err != nil {
		t.Fatalf("failed to stage input: %v", err)
	}
	return input
}

func TestLibreOfficeService_Convert_Success(t *testing.T) {
	store := newTestFileStore(t)
	argsFile := filepath.Join(t.TempDir(), "args")
	engine := fakeEngine(t, "echo \"$args\" > '"+argsFile+"'\necho '%PDF-1.4' > \"$outdir/$name.pdf\"\n")
	svc := NewLibreOfficeService(engine, store, 10*time.Second, zaptest.NewLogger(t))

	input := stageInput(t, store, "report.pptx")
	result := svc.Convert(context.Background(), input)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.OutputPath != filepath.Join(store.OutboundDir(), "report.pdf") {
		t.Fatalf("unexpected output path: %s", result.OutputPath)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("failed to read recorded args: %v", err)
	}
	want := "--headless --convert-to pdf --outdir " + store.OutboundDir() + " " + input
	if strings.TrimSpace(string(args)) != want {
		t.Fatalf("unexpected engine args:\n got: %s\nwant: %s", strings.TrimSpace(string(args)), want)
	}
}

func TestLibreOfficeService_Convert_ExitZeroWithoutOutputFails(t *testing.T) {
	store := newTestFileStore(t)
	engine := fakeEngine(t, "exit 0\n")
	svc := NewLibreOfficeService(engine, store, 10*time.Second, zaptest.NewLogger(t))

	result := svc.Convert(context.Background(), stageInput(t, store, "report.pptx"))
	if result.Success {
		t.Fatal("exit 0 without output must not count as success")
	}
	if result.OutputPath != "" || result.TimedOut {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestLibreOfficeService_Convert_StaleOutputIsNotSuccess(t *testing.T) {
	store := newTestFileStore(t)
	stale := filepath.Join(store.OutboundDir(), "report.pdf")
	if err := os.WriteFile(stale, []byte("someone else's pdf"), 0644); err != nil {
		t.Fatalf("failed to write stale output: %v", err)
	}
	engine := fakeEngine(t, "exit 0\n")
	svc := NewLibreOfficeService(engine, store, 10*time.Second, zaptest.NewLogger(t))

	result := svc.Convert(context.Background(), stageInput(t, store, "report.pptx"))
	if result.Success || result.OutputPath != "" {
		t.Fatalf("stale output reported as success: %+v", result)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected stale output to be removed before the engine ran")
	}
}

func TestLibreOfficeService_Convert_StaleOutputReplaced(t *testing.T) {
	store := newTestFileStore(t)
	output := filepath.Join(store.OutboundDir(), "report.pdf")
	if err := os.WriteFile(output, []byte("someone else's pdf"), 0644); err != nil {
		t.Fatalf("failed to write stale output: %v", err)
	}
	engine := fakeEngine(t, "echo '%PDF-1.4' > \"$outdir/$name.pdf\"\n")
	svc := NewLibreOfficeService(engine, store, 10*time.Second, zaptest.NewLogger(t))

	result := svc.Convert(context.Background(), stageInput(t, store, "report.pptx"))
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	content, err := os.ReadFile(result.OutputPath)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if strings.TrimSpace(string(content)) != "%PDF-1.4" {
		t.Fatalf("unexpected output content: %q", content)
	}
}

func TestLibreOfficeService_Convert_NonZeroExitFails(t *testing.T) {
	store := newTestFileStore(t)
	engine := fakeEngine(t, "echo 'source file could not be loaded' >&2\necho partial > \"$outdir/$name.pdf\"\nexit 1\n")
	svc := NewLibreOfficeService(engine, store, 10*time.Second, zaptest.NewLogger(t))

	result := svc.Convert(context.Background(), stageInput(t, store, "broken.ppt"))
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Stderr, "could not be loaded") {
		t.Fatalf("expected engine stderr, got %q", result.Stderr)
	}
	if _, err := os.Stat(filepath.Join(store.OutboundDir(), "broken.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected partial output to be removed")
	}
}

func TestLibreOfficeService_Convert_Timeout(t *testing.T) {
	store := newTestFileStore(t)
	engine := fakeEngine(t, "echo partial > \"$outdir/$name.pdf\"\nexec sleep 30\n")
	svc := NewLibreOfficeService(engine, store, 300*time.Millisecond, zaptest.NewLogger(t))

	start := time.Now()
	result := svc.Convert(context.Background(), stageInput(t, store, "slow.pptx"))
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
	if result.Success || !result.TimedOut {
		t.Fatalf("expected timed-out failure, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(store.OutboundDir(), "slow.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected partial output to be removed after timeout")
	}
}

func TestLibreOfficeService_Convert_MissingBinaryFails(t *testing.T) {
	store := newTestFileStore(t)
	svc := NewLibreOfficeService(filepath.Join(t.TempDir(), "does-not-exist"), store, time.Second, zaptest.NewLogger(t))

	result := svc.Convert(context.Background(), stageInput(t, store, "report.pptx"))
	if result.Success || result.Err == nil {
		t.Fatalf("expected spawn failure, got %+v", result)
	}
}
