package sse

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/filegeek/filegeek-go/log"
	"github.com/filegeek/filegeek-go/metrics"
	"github.com/filegeek/filegeek-go/types"
)

// readBufferSize is the read granularity for the underlying stream.
// The value only affects syscall frequency, never framing: the line buffer
// reassembles logical lines regardless of how reads split them.
const readBufferSize = 4 * 1024

// Reader turns a raw answer-stream body into a sequence of Frames and
// accumulates the merged StreamResult.
//
// Frames are emitted strictly in arrival order. Malformed lines are logged
// and skipped — a single bad frame must not abort the stream. The Reader
// never retries or reconnects; that is the orchestrator's decision.
type Reader struct {
	src       io.Reader
	logger    *log.Logger
	collector *metrics.Collector

	buf     []byte  // raw read buffer
	pending string  // trailing partial line retained across reads
	queue   []Frame // classified frames not yet returned by Next
	eof     bool

	// accumulation state, mutated only by Next
	text      strings.Builder
	early     []types.Artifact
	done      *Done
	serverErr string
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// WithCollector sets the metrics collector. Nil is allowed.
func WithCollector(c *metrics.Collector) Option {
	return func(r *Reader) { r.collector = c }
}

// NewReader creates a Reader over an open stream body.
func NewReader(src io.Reader, opts ...Option) *Reader {
	r := &Reader{
		src:    src,
		logger: log.Nop(),
		buf:    make([]byte, readBufferSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next Frame in arrival order.
// Returns io.EOF once the underlying stream has closed and all buffered
// frames have been drained. Read errors other than EOF are returned as-is;
// the accumulated result remains valid either way.
func (r *Reader) Next() (Frame, error) {
	for {
		if len(r.queue) > 0 {
			f := r.queue[0]
			r.queue = r.queue[1:]
			return f, nil
		}
		if r.eof {
			return nil, io.EOF
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.ingest(string(r.buf[:n]))
		}
		if err != nil {
			r.eof = true
			// The final line of a well-formed stream ends in a newline, but
			// a server that omits it would otherwise lose its last frame.
			// EOF terminates the retained partial line.
			if r.pending != "" {
				r.parseLine(r.pending)
				r.pending = ""
			}
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
		}
	}
}

// ingest appends a decoded text chunk to the line buffer and parses every
// complete line. The trailing partial line is retained for the next read.
func (r *Reader) ingest(chunk string) {
	data := r.pending + chunk
	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		r.parseLine(data[:idx])
		data = data[idx+1:]
	}
	r.pending = data
}

// parseLine decodes one complete line and queues the resulting frame.
// Blank lines are event separators; lines without the data prefix and
// lines with malformed JSON are skipped, never fatal.
func (r *Reader) parseLine(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}

	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		r.logger.Debug("skipping non-data line", map[string]any{
			"prefix": truncate(line, 32),
		})
		r.collector.IncFramesSkipped()
		return
	}

	var ev wireEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.logger.Warn("skipping malformed frame", map[string]any{
			"error":  err.Error(),
			"prefix": truncate(payload, 32),
		})
		r.collector.IncFramesSkipped()
		return
	}

	frame := classify(&ev)
	if frame == nil {
		r.collector.IncFramesSkipped()
		return
	}

	r.collector.IncFramesDecoded()
	r.apply(frame)
	r.queue = append(r.queue, frame)
}

// apply folds a frame into the accumulated result.
func (r *Reader) apply(frame Frame) {
	switch f := frame.(type) {
	case Chunk:
		if r.done == nil {
			r.text.WriteString(f.Text)
		}
	case ArtifactsEarly:
		r.early = f.Artifacts
	case Done:
		if r.done != nil {
			// Exactly one done frame terminates a stream; a duplicate is a
			// server bug. First one wins.
			r.logger.Warn("ignoring duplicate done frame", nil)
			return
		}
		done := f
		r.done = &done
	case Error:
		r.serverErr = f.Message
	}
}

// Result returns the merged stream outcome. Valid once Next has returned
// io.EOF (or the caller has decided to stop reading).
//
// Merge rules:
//   - done seen: full result; Done.artifacts when non-empty, else the last
//     early artifacts
//   - no done: partial result carrying the accumulated text and the last
//     early artifacts
//   - nothing accumulated: empty result — the documented connection-dropped
//     outcome, not an error
func (r *Reader) Result() types.StreamResult {
	if r.done != nil {
		artifacts := r.done.Artifacts
		if len(artifacts) == 0 {
			artifacts = r.early
		}
		r.collector.IncStreamsCompleted()
		return types.StreamResult{
			Text:        r.done.Answer,
			MessageID:   r.done.MessageID,
			Sources:     r.done.Sources,
			Artifacts:   artifacts,
			Suggestions: r.done.Suggestions,
			Done:        true,
		}
	}

	if len(r.early) > 0 || r.text.Len() > 0 {
		// Dropped before done: whatever accumulated is preserved, never
		// silently lost. The caller marks the exchange partial.
		r.collector.IncStreamsPartial()
		return types.StreamResult{Text: r.text.String(), Artifacts: r.early}
	}

	r.collector.IncStreamsEmpty()
	return types.StreamResult{}
}

// ServerError returns the message of an in-stream error frame, if any.
func (r *Reader) ServerError() string {
	return r.serverErr
}

// AccumulatedText returns the prefix-concatenation of all chunk frames seen
// so far. Safe to call between Next calls for live-view observation.
func (r *Reader) AccumulatedText() string {
	return r.text.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
