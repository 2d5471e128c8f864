// Blob storage for uploaded binary files.
//
// Blobs are written once under a content-independent id and never
// rewritten, which decouples them from drawing back-reference churn: a
// drawing edit re-uploads the drawing file but not its attachments.

package collection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maruel/ksid"

	"conceptarium/internal/remote"
)

// Blob is an uploaded binary file payload. Data is base64-encoded in the
// JSON encoding.
type Blob struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Mime string `json:"mime,omitempty"`
	Data []byte `json:"data"`
}

// NewBlobID returns a fresh uploaded-file id.
func NewBlobID() string {
	return ksid.NewID().String()
}

// UploadBlob writes a blob file. Create-only: blob ids are unique, so an
// existing file under the same id is a programming error surfaced as a
// conflict.
func (c *Codec) UploadBlob(ctx context.Context, blob Blob) error {
	data, err := json.Marshal(&blob)
	if err != nil {
		return fmt.Errorf("encode blob %q: %w", blob.ID, err)
	}
	if _, err := c.files.Upload(ctx, c.blobPath(blob.ID), data, remote.Add()); err != nil {
		return fmt.Errorf("upload blob %q: %w", blob.ID, err)
	}
	return nil
}

// DownloadBlob fetches a blob file by id.
func (c *Codec) DownloadBlob(ctx context.Context, id string) (*Blob, error) {
	content, err := c.files.Download(ctx, c.blobPath(id), "")
	if err != nil {
		return nil, fmt.Errorf("download blob %q: %w", id, err)
	}
	var blob Blob
	if err := json.Unmarshal(content.Data, &blob); err != nil {
		return nil, fmt.Errorf("decode blob %q: %w", id, err)
	}
	return &blob, nil
}

// DeleteBlob removes a blob file by id.
func (c *Codec) DeleteBlob(ctx context.Context, id string) error {
	return c.files.Delete(ctx, c.blobPath(id))
}
