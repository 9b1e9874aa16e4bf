// Package images defines the image hosting boundary consumed by the
// content-editing flows. The core stores whatever URL the service returns as
// an ordinary field value; deletion is best-effort and may be a no-op
// depending on the provider.
package images

import (
	"context"
	"io"
)

// Service uploads image files and returns publicly reachable URLs.
type Service interface {
	// Upload stores the file under the given folder and returns its URL.
	Upload(ctx context.Context, file io.Reader, folder, filename string) (string, error)

	// Delete removes the file behind a previously returned URL. Best
	// effort: unknown URLs are a no-op, not an error.
	Delete(ctx context.Context, url string) error
}
