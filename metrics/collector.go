// Package metrics provides client-side counters for the protocol layer.
//
// The Collector accumulates counters for one client instance. It is a leaf
// package with no internal dependencies. All increment methods are
// nil-receiver safe so components can run without a collector wired in.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Answer streams
	FramesDecoded    int64
	FramesSkipped    int64 // malformed lines dropped by the frame reader
	StreamsCompleted int64 // done frame seen
	StreamsPartial   int64 // dropped with early artifacts or text
	StreamsEmpty     int64 // dropped with nothing accumulated

	// Task tracking
	PushEvents      int64
	PollsIssued     int64
	PollFailures    int64
	SealedByPush    int64
	SealedByPolling int64
	FallbacksFired  int64 // fallback timer expired with no push event

	// Dimensions (informational, set at construction)
	Backend string
}

// Collector accumulates counters for a client instance.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	framesDecoded    int64
	framesSkipped    int64
	streamsCompleted int64
	streamsPartial   int64
	streamsEmpty     int64

	pushEvents      int64
	pollsIssued     int64
	pollFailures    int64
	sealedByPush    int64
	sealedByPolling int64
	fallbacksFired  int64

	backend string
}

// NewCollector creates a Collector labelled with the backend base URL.
func NewCollector(backend string) *Collector {
	return &Collector{backend: backend}
}

// IncFramesDecoded increments the decoded-frame counter.
func (c *Collector) IncFramesDecoded() {
	if c == nil {
		return
	}
	c.inc(&c.framesDecoded)
}

// IncFramesSkipped increments the skipped-frame counter.
func (c *Collector) IncFramesSkipped() {
	if c == nil {
		return
	}
	c.inc(&c.framesSkipped)
}

// IncStreamsCompleted increments the completed-stream counter.
func (c *Collector) IncStreamsCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.streamsCompleted)
}

// IncStreamsPartial increments the partial-stream counter.
func (c *Collector) IncStreamsPartial() {
	if c == nil {
		return
	}
	c.inc(&c.streamsPartial)
}

// IncStreamsEmpty increments the empty-stream counter.
func (c *Collector) IncStreamsEmpty() {
	if c == nil {
		return
	}
	c.inc(&c.streamsEmpty)
}

// IncPushEvents increments the push-event counter.
func (c *Collector) IncPushEvents() {
	if c == nil {
		return
	}
	c.inc(&c.pushEvents)
}

// IncPollsIssued increments the poll-request counter.
func (c *Collector) IncPollsIssued() {
	if c == nil {
		return
	}
	c.inc(&c.pollsIssued)
}

// IncPollFailures increments the poll-failure counter.
func (c *Collector) IncPollFailures() {
	if c == nil {
		return
	}
	c.inc(&c.pollFailures)
}

// IncSealedByPush increments the push-seal counter.
func (c *Collector) IncSealedByPush() {
	if c == nil {
		return
	}
	c.inc(&c.sealedByPush)
}

// IncSealedByPolling increments the polling-seal counter.
func (c *Collector) IncSealedByPolling() {
	if c == nil {
		return
	}
	c.inc(&c.sealedByPolling)
}

// IncFallbacksFired increments the fallback-activation counter.
func (c *Collector) IncFallbacksFired() {
	if c == nil {
		return
	}
	c.inc(&c.fallbacksFired)
}

func (c *Collector) inc(field *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// Snapshot returns an immutable view of all counters.
// Nil-receiver safe: returns a zero Snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FramesDecoded:    c.framesDecoded,
		FramesSkipped:    c.framesSkipped,
		StreamsCompleted: c.streamsCompleted,
		StreamsPartial:   c.streamsPartial,
		StreamsEmpty:     c.streamsEmpty,
		PushEvents:       c.pushEvents,
		PollsIssued:      c.pollsIssued,
		PollFailures:     c.pollFailures,
		SealedByPush:     c.sealedByPush,
		SealedByPolling:  c.sealedByPolling,
		FallbacksFired:   c.fallbacksFired,
		Backend:          c.backend,
	}
}
