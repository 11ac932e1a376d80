// Package push defines the push-channel boundary for task progress events.
//
// A push channel is the low-latency half of task tracking: the backend
// publishes progress events for a task and a Subscriber delivers them to the
// tracker. Push is an optimization, never a requirement; the tracker must
// make identical progress from polling alone when no push events arrive.
package push

import (
	"context"

	"github.com/filegeek/filegeek-go/types"
)

// Subscriber delivers task progress events published by the backend.
// Implementations must be safe for concurrent Subscribe calls.
type Subscriber interface {
	// Subscribe opens a per-task event stream. Events arrive on the returned
	// channel in publish order. The channel closes when the subscription is
	// torn down, the context is canceled, or the underlying transport fails.
	//
	// The returned stop function releases the subscription; it is safe to
	// call more than once. A non-nil error means the subscription could not
	// be established at all and the caller should fall back to polling.
	Subscribe(ctx context.Context, taskID string) (<-chan types.TaskEvent, func(), error)

	// Close releases subscriber resources.
	Close() error
}
