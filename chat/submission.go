package chat

import (
	"sync"

	"github.com/filegeek/filegeek-go/types"
)

// Submission is the handle for one document submission.
//
// TaskID is empty when the server took the synchronous path; in that case
// the handle is already complete when SubmitDocument returns. Otherwise the
// handle completes when the tracked task seals.
type Submission struct {
	TaskID   string
	FileName string

	mu   sync.Mutex
	doc  *types.Document
	err  error
	done chan struct{}
}

// Done returns a channel closed when the submission reaches its outcome.
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Result returns the indexed document or the terminal failure.
// Valid once Done is closed; before that it returns nil, nil.
func (s *Submission) Result() (*types.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, s.err
}

// complete records the outcome and closes done. Exactly one call wins;
// late calls from a straggling channel are discarded.
func (s *Submission) complete(doc *types.Document, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	s.doc = doc
	s.err = err
	close(s.done)
}
