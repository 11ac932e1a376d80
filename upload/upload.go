// Package upload stores raw files in object storage before indexing.
//
// Uploading and registering are separate steps: the file body goes to
// storage first, and the resulting URL is what gets submitted to the backend
// for indexing.
package upload

import (
	"context"
	"io"
)

// Service stores a file and returns the URL the backend indexes from.
type Service interface {
	// Upload stores the file body and returns its storage URL.
	// The name is the user-visible file name; contentType may be empty.
	Upload(ctx context.Context, sessionID, name, contentType string, body io.Reader) (string, error)

	// Close releases service resources.
	Close() error
}
