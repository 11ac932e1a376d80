package types

// Document is an indexed-document reference returned when an indexing task
// completes. Shape matches the server's document record.
type Document struct {
	ID         int    `json:"id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	FileURL    string `json:"file_url,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	PageCount  int    `json:"page_count,omitempty"`
}

// Task is the authoritative state of one background indexing operation.
//
// Invariant: once Phase is terminal the Task is sealed — the tracker never
// publishes another state for the same task id.
type Task struct {
	ID       string    `json:"task_id"`
	Phase    Phase     `json:"phase"`
	Progress int       `json:"progress"`
	Document *Document `json:"document,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Terminal returns true if the task state is sealed.
func (t *Task) Terminal() bool {
	return t.Phase.IsTerminal()
}

// TaskEvent is a progress notification from the push channel.
// Shape matches the server's pub/sub payload for `task:{taskId}` channels.
type TaskEvent struct {
	TaskID   string    `json:"task_id"`
	Phase    string    `json:"phase"`
	Progress *int      `json:"progress,omitempty"`
	Document *Document `json:"document,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// TaskStatus is the polling endpoint's response shape. The endpoint reports
// a coarse status string plus optional phase/progress detail; both vocabularies
// normalize onto the Phase enum.
type TaskStatus struct {
	Status   string      `json:"status"`
	Phase    string      `json:"phase,omitempty"`
	Progress *int        `json:"progress,omitempty"`
	Result   *TaskResult `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// TaskResult is the result payload of a successfully completed task.
// Some server versions nest the document, others inline it; both decode here.
type TaskResult struct {
	Document *Document `json:"document,omitempty"`

	// Inline fallback for servers that return the document fields directly.
	ID       int    `json:"id,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// ResolveDocument returns the document reference from either shape.
func (r *TaskResult) ResolveDocument() *Document {
	if r == nil {
		return nil
	}
	if r.Document != nil {
		return r.Document
	}
	if r.ID != 0 || r.FileName != "" {
		return &Document{ID: r.ID, FileName: r.FileName}
	}
	return nil
}

// ToTask converts a poll response into a Task for the given id.
// Phase detail wins over the coarse status string when present; progress
// falls back to the phase default when the server omits it.
func (s *TaskStatus) ToTask(taskID string) Task {
	phase := NormalizeStatus(s.Status)
	if s.Phase != "" {
		phase = NormalizePhase(s.Phase)
	}

	progress := DefaultProgress(phase)
	if s.Progress != nil {
		progress = *s.Progress
	}

	return Task{
		ID:       taskID,
		Phase:    phase,
		Progress: progress,
		Document: s.Result.ResolveDocument(),
		Error:    s.Error,
	}
}

// ToTask converts a push event into a Task.
func (e *TaskEvent) ToTask() Task {
	phase := NormalizePhase(e.Phase)

	progress := DefaultProgress(phase)
	if e.Progress != nil {
		progress = *e.Progress
	}

	return Task{
		ID:       e.TaskID,
		Phase:    phase,
		Progress: progress,
		Document: e.Document,
		Error:    e.Error,
	}
}
