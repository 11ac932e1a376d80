// Package chat orchestrates user-facing operations against the backend.
//
// The orchestrator is the single entry point for the rest of the
// application: it binds an ask to a frame reader, a document submission to a
// progress tracker, and commits the outcome of either into the session's
// append-only exchange history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filegeek/filegeek-go/api"
	"github.com/filegeek/filegeek-go/iox"
	"github.com/filegeek/filegeek-go/log"
	"github.com/filegeek/filegeek-go/metrics"
	"github.com/filegeek/filegeek-go/sse"
	"github.com/filegeek/filegeek-go/types"
)

// ErrAskInFlight is returned when a session already has an unanswered
// question. At most one ask per session is in flight at a time.
var ErrAskInFlight = errors.New("chat: a question is already in flight for this session")

// ErrAskCanceled is returned when the caller canceled the ask before the
// stream ended. Nothing is committed for a canceled ask.
var ErrAskCanceled = errors.New("chat: ask canceled")

// AnswerError is a server-reported answer failure, delivered either as a
// non-2xx response or as an in-stream error frame.
type AnswerError struct {
	Message string
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("answer failed: %s", e.Message)
}

// IndexError is a terminal indexing failure tied to the submitted file, so
// the user can retry that specific submission.
type IndexError struct {
	FileName string
	TaskID   string
	Message  string
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("indexing %s failed: %s", e.FileName, e.Message)
}

// Backend is the slice of the API client the orchestrator uses.
type Backend interface {
	AskStream(ctx context.Context, sessionID string, ask api.AskRequest) (io.ReadCloser, *types.StreamResult, error)
	Ask(ctx context.Context, sessionID string, ask api.AskRequest) (*types.StreamResult, error)
	SubmitDocument(ctx context.Context, sessionID string, in api.SubmitRequest) (*api.SubmitResponse, error)
	CreateSession(ctx context.Context, title, persona string) (*types.Session, error)
}

// TaskTracker follows a background task to its terminal state.
type TaskTracker interface {
	Track(ctx context.Context, taskID string, onUpdate func(types.Task)) (*types.Task, error)
}

// Recorder archives committed exchanges.
type Recorder interface {
	Append(ctx context.Context, sessionID string, ex types.Exchange) error
}

// Config configures an Orchestrator.
type Config struct {
	// Backend is the API client (required).
	Backend Backend
	// Tracker follows asynchronous indexing tasks (required).
	Tracker TaskTracker
	// Archive records committed exchanges. Nil disables local history;
	// archive failures are logged, never surfaced, because losing an
	// archive write must not lose the answer.
	Archive Recorder
	// OnStale is called after a commit or a finished indexing task, naming
	// the session whose downstream caches are now stale. May be nil.
	OnStale func(sessionID string)
	// Logger is an optional logger. Defaults to no-op.
	Logger *log.Logger
	// Collector counts stream outcomes. Nil is allowed.
	Collector *metrics.Collector
}

// AskOptions tunes one ask.
type AskOptions struct {
	// DeepThink requests the slower, higher-effort answer path.
	DeepThink bool
	// Model overrides the server's default model.
	Model string
	// NoStream skips the streaming path entirely and asks for a single
	// document. The committed exchange is identical either way.
	NoStream bool
	// OnText receives the live in-progress view: the full accumulated text
	// after each chunk, monotonically growing. Called from the asking
	// goroutine; an empty string means the view was cleared by Cancel.
	OnText func(text string)
	// OnArtifacts receives early artifacts as they arrive.
	OnArtifacts func(artifacts []types.Artifact)
}

// askState is the per-session in-flight bookkeeping.
// Guarded by Orchestrator.mu; canceled is also read by the ask loop.
type askState struct {
	cancel   context.CancelFunc
	canceled bool
	onText   func(string)
}

// Orchestrator ties user actions to streams, trackers, and session history.
type Orchestrator struct {
	config    Config
	logger    *log.Logger
	collector *metrics.Collector

	mu       sync.Mutex
	inFlight map[string]*askState        // session id → active ask
	history  map[string][]types.Exchange // session id → committed exchanges
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Backend == nil {
		return nil, errors.New("chat: backend is required")
	}
	if cfg.Tracker == nil {
		return nil, errors.New("chat: tracker is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}

	return &Orchestrator{
		config:    cfg,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		inFlight:  make(map[string]*askState),
		history:   make(map[string][]types.Exchange),
	}, nil
}

// Ask sends a question and returns the committed exchange.
//
// The streaming path is tried first; while it is open, OnText observes the
// monotonically growing answer. When the server cannot stream, the
// non-streaming path returns an equivalent final result and the caller
// cannot tell the difference. A dropped stream commits whatever accumulated,
// marked partial, rather than failing.
func (o *Orchestrator) Ask(ctx context.Context, sessionID, question string, opts AskOptions) (*types.Exchange, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("chat: empty question")
	}

	sessionID, err := o.resolveSession(ctx, sessionID, question)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &askState{cancel: cancel, onText: opts.OnText}
	if err := o.acquire(sessionID, state); err != nil {
		return nil, err
	}
	defer o.release(sessionID)

	result, serverErr, err := o.streamAnswer(ctx, sessionID, question, opts, state)
	if err != nil {
		return nil, err
	}

	if o.isCanceled(sessionID) {
		return nil, ErrAskCanceled
	}

	if serverErr != "" && result.Empty() {
		return nil, &AnswerError{Message: serverErr}
	}

	exchange := types.Exchange{
		ID:          uuid.NewString(),
		Question:    question,
		Answer:      result.Text,
		MessageID:   result.MessageID,
		Sources:     result.Sources,
		Artifacts:   result.Artifacts,
		Suggestions: result.Suggestions,
		Partial:     !result.Done,
		CreatedAt:   time.Now().UTC(),
	}

	o.commit(ctx, sessionID, exchange)
	return &exchange, nil
}

// streamAnswer runs the streaming path with the non-streaming fallback.
// Returns the merged result and any in-stream server error message.
func (o *Orchestrator) streamAnswer(ctx context.Context, sessionID, question string, opts AskOptions, state *askState) (*types.StreamResult, string, error) {
	ask := api.AskRequest{Question: question, DeepThink: opts.DeepThink, Model: opts.Model}

	if opts.NoStream {
		result, err := o.config.Backend.Ask(ctx, sessionID, ask)
		if err != nil {
			return nil, "", o.answerError(err)
		}
		return result, "", nil
	}

	body, result, err := o.config.Backend.AskStream(ctx, sessionID, ask)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("chat: ask: %w", ctx.Err())
		}
		// The streaming endpoint being unavailable is an environment fact,
		// not a failed question. Fall back to the single-document path.
		o.logger.Warn("streaming unavailable, falling back", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		result, err := o.config.Backend.Ask(ctx, sessionID, ask)
		if err != nil {
			return nil, "", o.answerError(err)
		}
		return result, "", nil
	}

	if result != nil {
		// Server answered with a single document despite the stream request.
		return result, "", nil
	}

	defer iox.DiscardClose(body)

	reader := sse.NewReader(body, sse.WithLogger(o.logger), sse.WithCollector(o.collector))
	for {
		frame, err := reader.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				// Mid-stream transport error: the accumulated result is
				// still the committed outcome, marked partial.
				o.logger.Warn("answer stream dropped", map[string]any{
					"session_id": sessionID,
					"error":      err.Error(),
				})
			}
			break
		}

		if o.isCanceled(sessionID) {
			// Cooperative cancel: stop publishing and abandon the stream.
			break
		}

		switch f := frame.(type) {
		case sse.Chunk:
			if opts.OnText != nil {
				opts.OnText(reader.AccumulatedText())
			}
		case sse.ArtifactsEarly:
			if opts.OnArtifacts != nil {
				opts.OnArtifacts(f.Artifacts)
			}
		case sse.Done:
			if opts.OnText != nil && f.Answer != reader.AccumulatedText() {
				// The authoritative answer may differ from the chunk
				// concatenation; the live view ends on the real text.
				opts.OnText(f.Answer)
			}
		}
	}

	res := reader.Result()
	return &res, reader.ServerError(), nil
}

// Cancel cancels the session's in-flight ask, if any. The live view is
// cleared immediately; the ask call returns ErrAskCanceled and commits
// nothing. Returns false when nothing was in flight.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	state, ok := o.inFlight[sessionID]
	if ok && !state.canceled {
		state.canceled = true
		state.cancel()
	}
	onText := func(string) {}
	if ok && state.onText != nil {
		onText = state.onText
	}
	o.mu.Unlock()

	if ok {
		onText("")
	}
	return ok
}

// SubmitDocument registers an uploaded file for indexing and returns a
// Submission handle immediately. The synchronous server path completes the
// handle before it returns; the asynchronous path completes it when the
// tracked task seals. onProgress observes non-terminal phases; it may be nil.
func (o *Orchestrator) SubmitDocument(ctx context.Context, sessionID string, in api.SubmitRequest, onProgress func(types.Task)) (*Submission, error) {
	if sessionID == "" {
		return nil, errors.New("chat: empty session ID")
	}

	resp, err := o.config.Backend.SubmitDocument(ctx, sessionID, in)
	if err != nil {
		return nil, o.submitError(in.FileName, err)
	}

	sub := &Submission{FileName: in.FileName, done: make(chan struct{})}

	if resp.Document != nil {
		// Synchronous path: the server indexed inline.
		sub.complete(resp.Document, nil)
		o.notifyStale(sessionID)
		return sub, nil
	}

	sub.TaskID = resp.TaskID
	go o.followTask(ctx, sessionID, in.FileName, sub, onProgress)
	return sub, nil
}

// followTask drives the tracker for an asynchronous submission and
// completes the handle from the sealed task.
func (o *Orchestrator) followTask(ctx context.Context, sessionID, fileName string, sub *Submission, onProgress func(types.Task)) {
	task, err := o.config.Tracker.Track(ctx, sub.TaskID, onProgress)
	if err != nil {
		sub.complete(nil, &IndexError{FileName: fileName, TaskID: sub.TaskID, Message: err.Error()})
		return
	}

	if !task.Phase.Succeeded() {
		message := task.Error
		if message == "" {
			message = string(task.Phase)
		}
		sub.complete(nil, &IndexError{FileName: fileName, TaskID: sub.TaskID, Message: message})
		return
	}

	o.logger.Info("document indexed", map[string]any{
		"session_id": sessionID,
		"task_id":    sub.TaskID,
		"file":       fileName,
	})
	sub.complete(task.Document, nil)
	o.notifyStale(sessionID)
}

// Exchanges returns a copy of the session's committed exchange history,
// oldest first.
func (o *Orchestrator) Exchanges(sessionID string) []types.Exchange {
	o.mu.Lock()
	defer o.mu.Unlock()

	src := o.history[sessionID]
	out := make([]types.Exchange, len(src))
	copy(out, src)
	return out
}

// --- Internals ---

// resolveSession returns the session to ask in, creating one titled after
// the question when none was given.
func (o *Orchestrator) resolveSession(ctx context.Context, sessionID, question string) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}

	session, err := o.config.Backend.CreateSession(ctx, titleFromQuestion(question), "")
	if err != nil {
		return "", fmt.Errorf("chat: create session: %w", err)
	}

	o.logger.Info("created session", map[string]any{
		"session_id": session.ID,
		"title":      session.Title,
	})
	return session.ID, nil
}

func (o *Orchestrator) acquire(sessionID string, state *askState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.inFlight[sessionID]; busy {
		return ErrAskInFlight
	}
	o.inFlight[sessionID] = state
	return nil
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	delete(o.inFlight, sessionID)
	o.mu.Unlock()
}

func (o *Orchestrator) isCanceled(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.inFlight[sessionID]
	return ok && state.canceled
}

// commit appends the exchange to the session history exactly once and
// notifies staleness. Archive failures are logged, not surfaced.
func (o *Orchestrator) commit(ctx context.Context, sessionID string, ex types.Exchange) {
	o.mu.Lock()
	o.history[sessionID] = append(o.history[sessionID], ex)
	o.mu.Unlock()

	if o.config.Archive != nil {
		// The exchange outlives the ask's context.
		archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := o.config.Archive.Append(archiveCtx, sessionID, ex); err != nil {
			o.logger.Warn("archive append failed", map[string]any{
				"session_id":  sessionID,
				"exchange_id": ex.ID,
				"error":       err.Error(),
			})
		}
		cancel()
	}

	o.notifyStale(sessionID)
}

func (o *Orchestrator) notifyStale(sessionID string) {
	if o.config.OnStale != nil {
		o.config.OnStale(sessionID)
	}
}

// answerError shapes a request failure into the caller-facing taxonomy.
func (o *Orchestrator) answerError(err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return &AnswerError{Message: statusErr.Message}
	}
	return fmt.Errorf("chat: ask: %w", err)
}

func (o *Orchestrator) submitError(fileName string, err error) error {
	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		message := statusErr.Message
		if message == "" {
			message = statusErr.Error()
		}
		return &IndexError{FileName: fileName, Message: message}
	}
	return fmt.Errorf("chat: submit %s: %w", fileName, err)
}

// titleFromQuestion derives a session title from the first words of the
// question.
func titleFromQuestion(question string) string {
	const maxTitle = 48

	title := strings.Join(strings.Fields(question), " ")
	if len(title) > maxTitle {
		title = strings.TrimSpace(title[:maxTitle]) + "…"
	}
	return title
}

// Verify the API client satisfies the backend boundary.
var _ Backend = (*api.Client)(nil)
