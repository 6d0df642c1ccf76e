// Package blob provides the blob storage collaborator: store bytes under a
// key, get back a retrievable URL. Image bytes are the only payload today.
package blob

import "context"

// Store uploads blobs and returns stable, retrievable references.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
