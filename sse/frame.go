// Package sse implements framing for the answer-stream protocol.
//
// The server streams `data: {json}\n\n` lines. Network chunk boundaries are
// arbitrary: a single logical line may arrive split across many reads, and a
// single read may carry many lines. The Reader reassembles lines and
// classifies each decoded object into exactly one Frame kind.
package sse

import (
	"github.com/filegeek/filegeek-go/types"
)

// dataPrefix is the SSE event framing prefix emitted by the server.
const dataPrefix = "data: "

// Frame is one classified unit of streamed server output.
//
// Classification priority for a decoded object:
//  1. done flag set true        → Done
//  2. non-empty artifacts, no done flag → ArtifactsEarly (last one wins)
//  3. chunk field present       → Chunk
//  4. error field present       → Error (stream ends after this)
//
// Anything else decodes cleanly but matches no kind and is ignored.
type Frame interface {
	frame()
}

// Chunk is an incremental piece of answer text.
type Chunk struct {
	Text string
}

// ArtifactsEarly carries artifacts published before the done frame.
// A later ArtifactsEarly replaces an earlier one for the same stream.
type ArtifactsEarly struct {
	Artifacts []types.Artifact
}

// Done is the terminal frame. At most one per stream.
type Done struct {
	Answer      string
	MessageID   int64
	Sources     []types.Source
	Artifacts   []types.Artifact
	Suggestions []string
}

// Error is a server-reported failure delivered in-stream, emitted when
// answer generation fails after the response headers were already sent.
type Error struct {
	Message string
}

func (Chunk) frame()          {}
func (ArtifactsEarly) frame() {}
func (Done) frame()           {}
func (Error) frame()          {}

// wireEvent is the dynamic shape of a decoded stream object. Fields appear
// and disappear depending on the event kind, so everything optional is a
// pointer or a zero-checkable slice.
type wireEvent struct {
	Chunk       *string          `json:"chunk,omitempty"`
	Done        bool             `json:"done,omitempty"`
	Answer      string           `json:"answer,omitempty"`
	MessageID   int64            `json:"message_id,omitempty"`
	Sources     []types.Source   `json:"sources,omitempty"`
	Artifacts   []types.Artifact `json:"artifacts,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	Error       *string          `json:"error,omitempty"`
}

// classify maps a decoded object onto a Frame, or nil when the object
// matches no frame kind.
func classify(ev *wireEvent) Frame {
	switch {
	case ev.Done:
		return Done{
			Answer:      ev.Answer,
			MessageID:   ev.MessageID,
			Sources:     ev.Sources,
			Artifacts:   ev.Artifacts,
			Suggestions: ev.Suggestions,
		}
	case len(ev.Artifacts) > 0:
		return ArtifactsEarly{Artifacts: ev.Artifacts}
	case ev.Chunk != nil:
		return Chunk{Text: *ev.Chunk}
	case ev.Error != nil:
		return Error{Message: *ev.Error}
	}
	return nil
}
