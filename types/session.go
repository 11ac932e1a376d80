package types

import "time"

// Artifact is a structured, non-text result attached to an exchange
// (a quiz, a diagram, flashcards). The shape is server-defined and varies
// by artifact kind, so it stays an open map at this boundary.
type Artifact = map[string]any

// Source is a retrieval citation attached to an answer.
type Source = map[string]any

// StreamResult is the accumulated outcome of one answer stream.
//
// Text is append-only while the stream is open. Artifacts holds the last
// early-artifact frame until a done frame with a non-empty artifact list
// replaces it. Done reports whether a terminal frame was seen; a false Done
// with non-empty fields is the documented partial-result outcome of a
// dropped connection, not an error.
type StreamResult struct {
	Text        string     `json:"answer"`
	MessageID   int64      `json:"message_id,omitempty"`
	Sources     []Source   `json:"sources,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	Suggestions []string   `json:"suggestions,omitempty"`
	Done        bool       `json:"done"`
}

// Empty returns true if the stream produced nothing at all.
func (r *StreamResult) Empty() bool {
	return !r.Done && r.Text == "" && len(r.Artifacts) == 0
}

// Exchange is one question/answer pair in a session, committed exactly once
// when the answer stream ends (normally or not).
type Exchange struct {
	ID          string     `json:"id"`
	Question    string     `json:"question"`
	Answer      string     `json:"answer"`
	MessageID   int64      `json:"message_id,omitempty"`
	Sources     []Source   `json:"sources,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	Suggestions []string   `json:"suggestions,omitempty"`
	// Partial marks an exchange whose stream dropped before the done frame.
	Partial   bool      `json:"partial,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a named, ordered sequence of exchanges. Exchanges are only ever
// appended; deletion of whole sessions is a server-side concern.
type Session struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Persona   string     `json:"persona,omitempty"`
	Preview   string     `json:"preview,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Exchanges []Exchange `json:"exchanges,omitempty"`
}
