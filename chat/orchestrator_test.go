package chat

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/filegeek/filegeek-go/api"
	"github.com/filegeek/filegeek-go/types"
)

// --- Test Helpers ---

type fakeBackend struct {
	mu sync.Mutex

	streamBody   io.ReadCloser
	streamResult *types.StreamResult
	streamErr    error

	askResult *types.StreamResult
	askErr    error
	askCalls  int

	submitResp *api.SubmitResponse
	submitErr  error

	created     *types.Session
	createCalls int
}

func (b *fakeBackend) AskStream(_ context.Context, _ string, _ api.AskRequest) (io.ReadCloser, *types.StreamResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streamBody, b.streamResult, b.streamErr
}

func (b *fakeBackend) Ask(_ context.Context, _ string, _ api.AskRequest) (*types.StreamResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.askCalls++
	return b.askResult, b.askErr
}

func (b *fakeBackend) SubmitDocument(_ context.Context, _ string, _ api.SubmitRequest) (*api.SubmitResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitResp, b.submitErr
}

func (b *fakeBackend) CreateSession(_ context.Context, title, _ string) (*types.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createCalls++
	if b.created == nil {
		b.created = &types.Session{ID: "s-new", Title: title}
	}
	return b.created, nil
}

type fakeTracker struct {
	updates []types.Task
	task    *types.Task
	err     error
}

func (f *fakeTracker) Track(_ context.Context, _ string, onUpdate func(types.Task)) (*types.Task, error) {
	for _, u := range f.updates {
		if onUpdate != nil {
			onUpdate(u)
		}
	}
	return f.task, f.err
}

type captureRecorder struct {
	mu        sync.Mutex
	exchanges []types.Exchange
	err       error
}

func (r *captureRecorder) Append(_ context.Context, _ string, ex types.Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.exchanges = append(r.exchanges, ex)
	return nil
}

func (r *captureRecorder) committed() []types.Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Exchange, len(r.exchanges))
	copy(out, r.exchanges)
	return out
}

func streamOf(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "")))
}

func newOrchestrator(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	if cfg.Tracker == nil {
		cfg.Tracker = &fakeTracker{}
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return o
}

func waitDone(t *testing.T, sub *Submission) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for submission")
	}
}

// --- Ask ---

func TestAsk_StreamingCommitsExchange(t *testing.T) {
	backend := &fakeBackend{streamBody: streamOf(
		"data: {\"chunk\":\"Hel\"}\n\n",
		"data: {\"chunk\":\"lo\"}\n\n",
		"data: {\"done\":true,\"answer\":\"Hello\",\"message_id\":5,\"sources\":[]}\n\n",
	)}
	archive := &captureRecorder{}

	var stale []string
	o := newOrchestrator(t, Config{
		Backend: backend,
		Archive: archive,
		OnStale: func(id string) { stale = append(stale, id) },
	})

	var view []string
	ex, err := o.Ask(t.Context(), "s-1", "say hello", AskOptions{
		OnText: func(text string) { view = append(view, text) },
	})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if ex.Answer != "Hello" || ex.MessageID != 5 || ex.Partial {
		t.Errorf("exchange = %+v, want complete Hello answer", ex)
	}
	if want := []string{"Hel", "Hello"}; !reflect.DeepEqual(view, want) {
		t.Errorf("live view = %v, want %v", view, want)
	}

	if got := o.Exchanges("s-1"); len(got) != 1 || got[0].ID != ex.ID {
		t.Errorf("session history = %+v, want the committed exchange", got)
	}
	if got := archive.committed(); len(got) != 1 || got[0].Answer != "Hello" {
		t.Errorf("archive = %+v, want the committed exchange", got)
	}
	if len(stale) != 1 || stale[0] != "s-1" {
		t.Errorf("stale notifications = %v, want [s-1]", stale)
	}
}

func TestAsk_PartialResultRecovery(t *testing.T) {
	// Early artifacts then connection drop before done: the committed
	// exchange carries the artifacts and empty text, not an error.
	backend := &fakeBackend{streamBody: streamOf(
		"data: {\"artifacts\":[{\"type\":\"quiz\",\"title\":\"Q1\"}]}\n\n",
	)}

	o := newOrchestrator(t, Config{Backend: backend})

	ex, err := o.Ask(t.Context(), "s-1", "make a quiz", AskOptions{})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if !ex.Partial {
		t.Error("exchange not marked partial")
	}
	if ex.Answer != "" {
		t.Errorf("answer = %q, want empty", ex.Answer)
	}
	if len(ex.Artifacts) != 1 || ex.Artifacts[0]["type"] != "quiz" {
		t.Errorf("artifacts = %+v, want the early quiz", ex.Artifacts)
	}
}

func TestAsk_DroppedStreamKeepsText(t *testing.T) {
	backend := &fakeBackend{streamBody: streamOf(
		"data: {\"chunk\":\"partial ans\"}\n\n",
	)}

	o := newOrchestrator(t, Config{Backend: backend})

	ex, err := o.Ask(t.Context(), "s-1", "q", AskOptions{})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !ex.Partial || ex.Answer != "partial ans" {
		t.Errorf("exchange = %+v, want partial with accumulated text", ex)
	}
}

func TestAsk_FallbackWhenStreamingUnavailable(t *testing.T) {
	backend := &fakeBackend{
		streamErr: errors.New("connect: connection refused"),
		askResult: &types.StreamResult{Text: "fallback answer", Done: true},
	}

	o := newOrchestrator(t, Config{Backend: backend})

	ex, err := o.Ask(t.Context(), "s-1", "q", AskOptions{})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ex.Answer != "fallback answer" || ex.Partial {
		t.Errorf("exchange = %+v, want complete fallback answer", ex)
	}
	if backend.askCalls != 1 {
		t.Errorf("fallback calls = %d, want 1", backend.askCalls)
	}
}

func TestAsk_NoStreamSkipsStreaming(t *testing.T) {
	// A streaming body is available but must not be touched.
	backend := &fakeBackend{
		streamBody: streamOf("data: {\"chunk\":\"streamed\"}\n\n"),
		askResult:  &types.StreamResult{Text: "single answer", Done: true},
	}

	o := newOrchestrator(t, Config{Backend: backend})

	ex, err := o.Ask(t.Context(), "s-1", "q", AskOptions{NoStream: true})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ex.Answer != "single answer" || ex.Partial {
		t.Errorf("exchange = %+v, want complete single answer", ex)
	}
	if backend.askCalls != 1 {
		t.Errorf("ask calls = %d, want 1", backend.askCalls)
	}
}

func TestAsk_SingleDocumentResponse(t *testing.T) {
	// Server ignored the stream request and answered in one document;
	// the caller cannot tell the difference.
	backend := &fakeBackend{streamResult: &types.StreamResult{Text: "direct", Done: true}}

	o := newOrchestrator(t, Config{Backend: backend})

	ex, err := o.Ask(t.Context(), "s-1", "q", AskOptions{})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ex.Answer != "direct" || ex.Partial {
		t.Errorf("exchange = %+v, want complete direct answer", ex)
	}
}

func TestAsk_InStreamError(t *testing.T) {
	backend := &fakeBackend{streamBody: streamOf(
		"data: {\"error\":\"AI response failed\"}\n\n",
	)}

	o := newOrchestrator(t, Config{Backend: backend})

	_, err := o.Ask(t.Context(), "s-1", "q", AskOptions{})
	var answerErr *AnswerError
	if !errors.As(err, &answerErr) {
		t.Fatalf("err = %v, want AnswerError", err)
	}
	if answerErr.Message != "AI response failed" {
		t.Errorf("message = %q, want server message", answerErr.Message)
	}
	if got := o.Exchanges("s-1"); len(got) != 0 {
		t.Errorf("history = %+v, want empty after failed ask", got)
	}
}

func TestAsk_RejectsConcurrentAsk(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeBackend{streamBody: pr}

	o := newOrchestrator(t, Config{Backend: backend})

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.Ask(context.Background(), "s-1", "first", AskOptions{})
		firstDone <- err
	}()

	// Let the first ask open its stream, then try a second one.
	time.Sleep(50 * time.Millisecond)
	_, err := o.Ask(t.Context(), "s-1", "second", AskOptions{})
	if !errors.Is(err, ErrAskInFlight) {
		t.Fatalf("err = %v, want ErrAskInFlight", err)
	}

	_, _ = io.WriteString(pw, "data: {\"done\":true,\"answer\":\"ok\"}\n\n")
	_ = pw.Close()

	if err := <-firstDone; err != nil {
		t.Fatalf("first ask: %v", err)
	}

	// The slot is free again.
	backend.mu.Lock()
	backend.streamBody = streamOf("data: {\"done\":true,\"answer\":\"again\"}\n\n")
	backend.mu.Unlock()
	if _, err := o.Ask(t.Context(), "s-1", "third", AskOptions{}); err != nil {
		t.Fatalf("third ask: %v", err)
	}
}

func TestAsk_CancelCommitsNothing(t *testing.T) {
	pr, pw := io.Pipe()
	backend := &fakeBackend{streamBody: pr}

	o := newOrchestrator(t, Config{Backend: backend})

	var mu sync.Mutex
	var view []string
	done := make(chan error, 1)
	go func() {
		_, err := o.Ask(context.Background(), "s-1", "q", AskOptions{
			OnText: func(text string) {
				mu.Lock()
				view = append(view, text)
				mu.Unlock()
			},
		})
		done <- err
	}()

	_, _ = io.WriteString(pw, "data: {\"chunk\":\"Hel\"}\n\n")
	time.Sleep(50 * time.Millisecond)

	if !o.Cancel("s-1") {
		t.Fatal("Cancel = false, want true with an ask in flight")
	}

	// Data after cancellation is discarded.
	_, _ = io.WriteString(pw, "data: {\"chunk\":\"lo\"}\n\n")
	_ = pw.Close()

	if err := <-done; !errors.Is(err, ErrAskCanceled) {
		t.Fatalf("err = %v, want ErrAskCanceled", err)
	}
	if got := o.Exchanges("s-1"); len(got) != 0 {
		t.Errorf("history = %+v, want empty after cancel", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(view) == 0 || view[len(view)-1] != "" {
		t.Errorf("live view = %v, want cleared (trailing empty string)", view)
	}
}

func TestCancel_NothingInFlight(t *testing.T) {
	o := newOrchestrator(t, Config{Backend: &fakeBackend{}})

	if o.Cancel("s-1") {
		t.Error("Cancel = true, want false with nothing in flight")
	}
}

func TestAsk_CreatesSessionWhenMissing(t *testing.T) {
	backend := &fakeBackend{streamResult: &types.StreamResult{Text: "a", Done: true}}

	o := newOrchestrator(t, Config{Backend: backend})

	_, err := o.Ask(t.Context(), "", "what is the krebs cycle about, in short?", AskOptions{})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if backend.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", backend.createCalls)
	}
	if got := o.Exchanges("s-new"); len(got) != 1 {
		t.Errorf("history = %+v, want exchange in created session", got)
	}
}

func TestAsk_ArchiveFailureDoesNotFailAsk(t *testing.T) {
	backend := &fakeBackend{streamResult: &types.StreamResult{Text: "a", Done: true}}
	archive := &captureRecorder{err: errors.New("disk full")}

	o := newOrchestrator(t, Config{Backend: backend, Archive: archive})

	if _, err := o.Ask(t.Context(), "s-1", "q", AskOptions{}); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got := o.Exchanges("s-1"); len(got) != 1 {
		t.Errorf("history = %+v, want exchange despite archive failure", got)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	o := newOrchestrator(t, Config{Backend: &fakeBackend{}})

	if _, err := o.Ask(t.Context(), "s-1", "   ", AskOptions{}); err == nil {
		t.Fatal("expected error for empty question")
	}
}

// --- SubmitDocument ---

func TestSubmitDocument_SynchronousPath(t *testing.T) {
	backend := &fakeBackend{submitResp: &api.SubmitResponse{
		Document: &types.Document{ID: 4, FileName: "notes.pdf"},
	}}

	stale := make(chan string, 1)
	o := newOrchestrator(t, Config{
		Backend: backend,
		OnStale: func(id string) { stale <- id },
	})

	sub, err := o.SubmitDocument(t.Context(), "s-1", api.SubmitRequest{
		FileName: "notes.pdf", FileURL: "s3://b/k",
	}, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitDone(t, sub)
	doc, err := sub.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if doc.ID != 4 {
		t.Errorf("document = %+v, want id 4", doc)
	}
	if sub.TaskID != "" {
		t.Errorf("task_id = %q, want empty on sync path", sub.TaskID)
	}
	if id := <-stale; id != "s-1" {
		t.Errorf("stale notification = %q, want s-1", id)
	}
}

func TestSubmitDocument_AsyncSuccess(t *testing.T) {
	backend := &fakeBackend{submitResp: &api.SubmitResponse{TaskID: "t-7", Status: "queued"}}
	tracker := &fakeTracker{
		updates: []types.Task{{ID: "t-7", Phase: types.PhaseIndexing, Progress: 80}},
		task: &types.Task{
			ID: "t-7", Phase: types.PhaseCompleted, Progress: 100,
			Document: &types.Document{ID: 7},
		},
	}

	stale := make(chan string, 1)
	o := newOrchestrator(t, Config{
		Backend: backend,
		Tracker: tracker,
		OnStale: func(id string) { stale <- id },
	})

	progress := make(chan types.Task, 4)
	sub, err := o.SubmitDocument(t.Context(), "s-1", api.SubmitRequest{
		FileName: "notes.pdf", FileURL: "s3://b/k",
	}, func(task types.Task) { progress <- task })
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.TaskID != "t-7" {
		t.Errorf("task_id = %q, want t-7", sub.TaskID)
	}

	waitDone(t, sub)
	doc, err := sub.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if doc.ID != 7 {
		t.Errorf("document = %+v, want id 7", doc)
	}

	if p := <-progress; p.Phase != types.PhaseIndexing {
		t.Errorf("progress = %+v, want indexing observation", p)
	}
	select {
	case id := <-stale:
		if id != "s-1" {
			t.Errorf("stale notification = %q, want s-1", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stale notification")
	}
}

func TestSubmitDocument_AsyncFailure(t *testing.T) {
	backend := &fakeBackend{submitResp: &api.SubmitResponse{TaskID: "t-7"}}
	tracker := &fakeTracker{task: &types.Task{
		ID: "t-7", Phase: types.PhaseFailure, Error: "unsupported file type",
	}}

	o := newOrchestrator(t, Config{Backend: backend, Tracker: tracker})

	sub, err := o.SubmitDocument(t.Context(), "s-1", api.SubmitRequest{
		FileName: "weird.xyz", FileURL: "s3://b/k",
	}, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitDone(t, sub)
	_, err = sub.Result()
	var indexErr *IndexError
	if !errors.As(err, &indexErr) {
		t.Fatalf("err = %v, want IndexError", err)
	}
	if indexErr.FileName != "weird.xyz" {
		t.Errorf("file = %q, want the submitted file", indexErr.FileName)
	}
	if !strings.Contains(indexErr.Message, "unsupported file type") {
		t.Errorf("message = %q, want server error", indexErr.Message)
	}
}

func TestSubmitDocument_TrackerError(t *testing.T) {
	backend := &fakeBackend{submitResp: &api.SubmitResponse{TaskID: "t-7"}}
	tracker := &fakeTracker{err: errors.New("poll failure budget exhausted")}

	o := newOrchestrator(t, Config{Backend: backend, Tracker: tracker})

	sub, err := o.SubmitDocument(t.Context(), "s-1", api.SubmitRequest{
		FileName: "notes.pdf", FileURL: "s3://b/k",
	}, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitDone(t, sub)
	_, err = sub.Result()
	var indexErr *IndexError
	if !errors.As(err, &indexErr) {
		t.Fatalf("err = %v, want IndexError", err)
	}
}

func TestSubmitDocument_RequestFailure(t *testing.T) {
	backend := &fakeBackend{submitErr: &api.StatusError{Code: 413, Message: "file too large"}}

	o := newOrchestrator(t, Config{Backend: backend})

	_, err := o.SubmitDocument(t.Context(), "s-1", api.SubmitRequest{
		FileName: "huge.pdf", FileURL: "s3://b/k",
	}, nil)
	var indexErr *IndexError
	if !errors.As(err, &indexErr) {
		t.Fatalf("err = %v, want IndexError", err)
	}
	if indexErr.FileName != "huge.pdf" || !strings.Contains(indexErr.Message, "file too large") {
		t.Errorf("err = %+v, want failure tied to huge.pdf", indexErr)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Tracker: &fakeTracker{}}); err == nil {
		t.Error("expected error for missing backend")
	}
	if _, err := New(Config{Backend: &fakeBackend{}}); err == nil {
		t.Error("expected error for missing tracker")
	}
}
