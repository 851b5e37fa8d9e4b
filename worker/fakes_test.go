package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"slidebot/models"
	"slidebot/services"

	"go.uber.org/zap/zaptest"
)

var errInjected = errors.New("injected fault")

type sentText struct {
	ChatID    int64
	MessageID int
	Text      string
}

type sentFile struct {
	ChatID   int64
	Filename string
	Caption  string
	Content  string
}

// fakeTransport records every call. Downloads write the file id as content.
type fakeTransport struct {
	mu     sync.Mutex
	nextID int

	downloadErr error
	deliverErr  error
	editErr     error
	sendTextErr error
	sendFileErr error
	forwardErr  error
	failReplies int

	replies   []sentText
	edits     []sentText
	deletes   []models.MessageRef
	delivered []sentFile
	texts     []sentText
	files     []sentFile
	forwards  []models.MessageRef
}

func (f *fakeTransport) Download(ctx context.Context, fileID string, dest string) error {
	f.mu.Lock()
	err := f.downloadErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(fileID), 0644)
}

func (f *fakeTransport) Reply(ctx context.Context, to models.MessageRef, text string) (models.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReplies > 0 {
		f.failReplies--
		return models.MessageRef{}, errInjected
	}
	f.nextID++
	f.replies = append(f.replies, sentText{ChatID: to.ChatID, MessageID: f.nextID, Text: text})
	return models.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeTransport) ReplyWithFile(ctx context.Context, to models.MessageRef, path, filename, caption string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, sentFile{ChatID: to.ChatID, Filename: filename, Caption: caption, Content: string(content)})
	return nil
}

func (f *fakeTransport) SendText(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendTextErr != nil {
		return f.sendTextErr
	}
	f.texts = append(f.texts, sentText{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeTransport) SendFile(ctx context.Context, chatID int64, path, filename, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendFileErr != nil {
		return f.sendFileErr
	}
	content, _ := os.ReadFile(path)
	f.files = append(f.files, sentFile{ChatID: chatID, Filename: filename, Caption: caption, Content: string(content)})
	return nil
}

func (f *fakeTransport) EditStatus(ctx context.Context, ref models.MessageRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, sentText{ChatID: ref.ChatID, MessageID: ref.MessageID, Text: text})
	return nil
}

func (f *fakeTransport) Delete(ctx context.Context, ref models.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ref)
	return nil
}

func (f *fakeTransport) Forward(ctx context.Context, ref models.MessageRef, target int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forwardErr != nil {
		return f.forwardErr
	}
	f.forwards = append(f.forwards, ref)
	return nil
}

// countText counts replies and edits carrying text.
func (f *fakeTransport) countText(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.replies {
		if m.Text == text {
			n++
		}
	}
	for _, m := range f.edits {
		if m.Text == text {
			n++
		}
	}
	return n
}

// countingFiles wraps a FileStore and counts Cleanup calls per path.
type countingFiles struct {
	*services.FileStore
	mu       sync.Mutex
	cleanups map[string]int
}

func (c *countingFiles) Cleanup(path string) error {
	c.mu.Lock()
	c.cleanups[path]++
	c.mu.Unlock()
	return c.FileStore.Cleanup(path)
}

func (c *countingFiles) cleanupCount(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanups[path]
}

// countingSlot wraps a Scheduler and counts successful acquisitions and
// releases.
type countingSlot struct {
	*Scheduler
	acquires atomic.Int64
	releases atomic.Int64
}

func (c *countingSlot) Acquire(ctx context.Context) error {
	if err := c.Scheduler.Acquire(ctx); err != nil {
		return err
	}
	c.acquires.Add(1)
	return nil
}

func (c *countingSlot) Release() {
	c.releases.Add(1)
	c.Scheduler.Release()
}

// fakeConverter copies the staged input into the result path, prefixed with
// "pdf:". It tracks how many conversions overlap.
type fakeConverter struct {
	store  *services.FileStore
	delay  time.Duration
	result func(input string) (models.ConversionResult, bool)
	panics bool

	mu        sync.Mutex
	inputs    []string
	inside    atomic.Int64
	maxInside atomic.Int64
}

func (c *fakeConverter) Convert(ctx context.Context, inputPath string) models.ConversionResult {
	n := c.inside.Add(1)
	defer c.inside.Add(-1)
	for {
		m := c.maxInside.Load()
		if n <= m || c.maxInside.CompareAndSwap(m, n) {
			break
		}
	}

	c.mu.Lock()
	c.inputs = append(c.inputs, inputPath)
	c.mu.Unlock()

	if c.panics {
		panic("engine adapter bug")
	}
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.result != nil {
		if res, ok := c.result(inputPath); ok {
			return res
		}
	}

	content, err := os.ReadFile(inputPath)
	if err != nil {
		return models.ConversionResult{Err: err}
	}
	output := c.store.ResultPath(inputPath)
	if err := os.WriteFile(output, append([]byte("pdf:"), content...), 0644); err != nil {
		return models.ConversionResult{Err: err}
	}
	return models.ConversionResult{Success: true, OutputPath: output}
}

type recordedStatus struct {
	mu       sync.Mutex
	statuses []models.Status
	err      error
}

func (r *recordedStatus) RecordStatus(ctx context.Context, job *models.ConversionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, job.Status)
	return r.err
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []string
	err      error
}

func (a *fakeArchiver) Archive(ctx context.Context, job *models.ConversionJob) error {
	if _, err := os.Stat(job.OutputPath); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, job.ID)
	return a.err
}

type harness struct {
	transport *fakeTransport
	files     *countingFiles
	slot      *countingSlot
	converter *fakeConverter
	pipeline  *Pipeline
}

type harnessOption func(*PipelineDeps)

func withObserver(id int64) harnessOption {
	return func(d *PipelineDeps) { d.Notifier = NewNotifier(d.Transport, id, d.Logger) }
}

func withRecorder(r StatusRecorder) harnessOption {
	return func(d *PipelineDeps) { d.Recorder = r }
}

func withArchiver(a Archiver) harnessOption {
	return func(d *PipelineDeps) { d.Archiver = a }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	root := t.TempDir()
	store, err := services.NewFileStore(filepath.Join(root, "downloads"), filepath.Join(root, "converted"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	h := &harness{
		transport: &fakeTransport{},
		files:     &countingFiles{FileStore: store, cleanups: make(map[string]int)},
		slot:      &countingSlot{Scheduler: NewScheduler()},
		converter: &fakeConverter{store: store},
	}
	deps := PipelineDeps{
		Transport:        h.transport,
		Files:            h.files,
		Converter:        h.converter,
		Slot:             h.slot,
		TransportTimeout: 5 * time.Second,
		Logger:           zaptest.NewLogger(t),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.pipeline = NewPipeline(deps)
	return h
}

func newJob(requester int64, filename string, fileID string) *models.ConversionJob {
	return models.NewConversionJob(models.Inbound{
		Ref:        models.MessageRef{ChatID: requester, MessageID: 1},
		SenderID:   requester,
		SenderName: "Ada",
		Document:   &models.Document{FileID: fileID, FileName: filename},
	}, 0)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
