package sse

import (
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/filegeek/filegeek-go/types"
)

// chunkedReader delivers a fixed sequence of chunks, one per Read call,
// simulating arbitrary network chunk boundaries.
type chunkedReader struct {
	chunks []string
	pos    int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.chunks) {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[c.pos])
	if n < len(c.chunks[c.pos]) {
		c.chunks[c.pos] = c.chunks[c.pos][n:]
	} else {
		c.pos++
	}
	return n, nil
}

// drain reads all frames and returns them along with the merged result.
func drain(t *testing.T, r *Reader) ([]Frame, types.StreamResult) {
	t.Helper()
	var frames []Frame
	for {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		frames = append(frames, f)
	}
	return frames, r.Result()
}

const helloStream = "data: {\"chunk\":\"Hel\"}\n\n" +
	"data: {\"chunk\":\"lo\"}\n\n" +
	"data: {\"done\":true,\"answer\":\"Hello\",\"message_id\":42,\"sources\":[]}\n\n"

func TestReader_HelloStream(t *testing.T) {
	r := NewReader(strings.NewReader(helloStream))

	frames, result := drain(t, r)

	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if c, ok := frames[0].(Chunk); !ok || c.Text != "Hel" {
		t.Errorf("frames[0] = %#v, want Chunk{Hel}", frames[0])
	}
	if c, ok := frames[1].(Chunk); !ok || c.Text != "lo" {
		t.Errorf("frames[1] = %#v, want Chunk{lo}", frames[1])
	}
	if _, ok := frames[2].(Done); !ok {
		t.Errorf("frames[2] = %#v, want Done", frames[2])
	}

	if !result.Done {
		t.Error("result.Done = false, want true")
	}
	if result.Text != "Hello" {
		t.Errorf("result.Text = %q, want %q", result.Text, "Hello")
	}
	if result.MessageID != 42 {
		t.Errorf("result.MessageID = %d, want 42", result.MessageID)
	}
}

func TestReader_LiveViewGrowsMonotonically(t *testing.T) {
	r := NewReader(strings.NewReader(
		"data: {\"chunk\":\"a\"}\n\ndata: {\"chunk\":\"b\"}\n\ndata: {\"chunk\":\"c\"}\n\n"))

	want := []string{"a", "ab", "abc"}
	for i := range want {
		if _, err := r.Next(); err != nil {
			t.Fatalf("Next %d failed: %v", i, err)
		}
		if got := r.AccumulatedText(); got != want[i] {
			t.Errorf("live view after frame %d = %q, want %q", i, got, want[i])
		}
	}
}

func TestReader_ChunkBoundaryInvariance(t *testing.T) {
	stream := "data: {\"chunk\":\"split \"}\n\n" +
		"data: {\"artifacts\":[{\"type\":\"quiz\"}]}\n\n" +
		"data: {\"chunk\":\"across reads\"}\n\n" +
		"data: {\"done\":true,\"answer\":\"split across reads\",\"artifacts\":[{\"type\":\"quiz\"},{\"type\":\"diagram\"}]}\n\n"

	baseline := func() types.StreamResult {
		_, result := drain(t, NewReader(strings.NewReader(stream)))
		return result
	}()

	// Every two-part split.
	for i := 1; i < len(stream); i++ {
		r := NewReader(&chunkedReader{chunks: []string{stream[:i], stream[i:]}})
		_, result := drain(t, r)
		if !reflect.DeepEqual(result, baseline) {
			t.Fatalf("split at %d: result = %+v, want %+v", i, result, baseline)
		}
	}

	// Byte-at-a-time delivery.
	var bytes []string
	for i := 0; i < len(stream); i++ {
		bytes = append(bytes, stream[i:i+1])
	}
	_, result := drain(t, NewReader(&chunkedReader{chunks: bytes}))
	if !reflect.DeepEqual(result, baseline) {
		t.Fatalf("byte-at-a-time: result = %+v, want %+v", result, baseline)
	}
}

func TestReader_MalformedFrameSkipped(t *testing.T) {
	r := NewReader(strings.NewReader(
		"data: {\"chunk\":\"ok\"}\n\n" +
			"data: {not json at all\n\n" +
			"data: {\"chunk\":\"!\"}\n\n"))

	frames, result := drain(t, r)

	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2 (bad frame skipped)", len(frames))
	}
	if result.Text != "ok!" {
		t.Errorf("result.Text = %q, want %q", result.Text, "ok!")
	}
}

func TestReader_NonDataLinesSkipped(t *testing.T) {
	r := NewReader(strings.NewReader(
		": keepalive comment\n" +
			"event: message\n" +
			"data: {\"chunk\":\"x\"}\n\n"))

	frames, _ := drain(t, r)
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
}

func TestReader_DroppedBeforeDone(t *testing.T) {
	r := NewReader(strings.NewReader(
		"data: {\"artifacts\":[{\"type\":\"quiz\",\"title\":\"Q1\"}]}\n\n"))

	frames, result := drain(t, r)

	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if result.Done {
		t.Error("result.Done = true, want false")
	}
	if result.Text != "" {
		t.Errorf("result.Text = %q, want empty", result.Text)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0]["type"] != "quiz" {
		t.Errorf("result.Artifacts = %+v, want the early quiz artifact", result.Artifacts)
	}
}

func TestReader_EmptyDropIsNotAnError(t *testing.T) {
	_, result := drain(t, NewReader(strings.NewReader("")))
	if !result.Empty() {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestReader_DoneArtifactsFallBackToEarly(t *testing.T) {
	r := NewReader(strings.NewReader(
		"data: {\"artifacts\":[{\"type\":\"quiz\"}]}\n\n" +
			"data: {\"done\":true,\"answer\":\"a\"}\n\n"))

	_, result := drain(t, r)

	if len(result.Artifacts) != 1 || result.Artifacts[0]["type"] != "quiz" {
		t.Errorf("result.Artifacts = %+v, want early artifacts preserved", result.Artifacts)
	}
}

func TestReader_DoneArtifactsReplaceEarly(t *testing.T) {
	r := NewReader(strings.NewReader(
		"data: {\"artifacts\":[{\"type\":\"quiz\"}]}\n\n" +
			"data: {\"done\":true,\"answer\":\"a\",\"artifacts\":[{\"type\":\"diagram\"},{\"type\":\"flashcards\"}]}\n\n"))

	_, result := drain(t, r)

	if len(result.Artifacts) != 2 {
		t.Fatalf("result.Artifacts = %d items, want 2 (done replaces early)", len(result.Artifacts))
	}
	if result.Artifacts[0]["type"] != "diagram" {
		t.Errorf("result.Artifacts[0] = %+v, want diagram", result.Artifacts[0])
	}
}

func TestReader_LaterEarlyArtifactsWin(t *testing.T) {
	r := NewReader(strings.NewReader(
		"data: {\"artifacts\":[{\"type\":\"quiz\"}]}\n\n" +
			"data: {\"artifacts\":[{\"type\":\"diagram\"}]}\n\n"))

	_, result := drain(t, r)

	if len(result.Artifacts) != 1 || result.Artifacts[0]["type"] != "diagram" {
		t.Errorf("result.Artifacts = %+v, want only the later diagram", result.Artifacts)
	}
}

func TestReader_InStreamError(t *testing.T) {
	r := NewReader(strings.NewReader("data: {\"error\":\"AI response failed\"}\n\n"))

	frames, result := drain(t, r)

	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	if _, ok := frames[0].(Error); !ok {
		t.Fatalf("frames[0] = %#v, want Error", frames[0])
	}
	if r.ServerError() != "AI response failed" {
		t.Errorf("ServerError = %q, want %q", r.ServerError(), "AI response failed")
	}
	if !result.Empty() {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestReader_DuplicateDoneIgnored(t *testing.T) {
	r := NewReader(strings.NewReader(
		"data: {\"done\":true,\"answer\":\"first\"}\n\n" +
			"data: {\"done\":true,\"answer\":\"second\"}\n\n"))

	_, result := drain(t, r)

	if result.Text != "first" {
		t.Errorf("result.Text = %q, want %q (first done wins)", result.Text, "first")
	}
}

func TestReader_MissingTrailingNewline(t *testing.T) {
	r := NewReader(strings.NewReader("data: {\"done\":true,\"answer\":\"x\"}"))

	_, result := drain(t, r)

	if !result.Done || result.Text != "x" {
		t.Errorf("result = %+v, want done with text %q", result, "x")
	}
}

func TestReader_CRLFLines(t *testing.T) {
	r := NewReader(strings.NewReader("data: {\"chunk\":\"a\"}\r\n\r\ndata: {\"done\":true,\"answer\":\"a\"}\r\n\r\n"))

	_, result := drain(t, r)

	if !result.Done || result.Text != "a" {
		t.Errorf("result = %+v, want done with %q", result, "a")
	}
}
