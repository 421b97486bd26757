// Package blobstore defines the capability to upload an NDJSON object
// with attached metadata, list/read/delete objects, and report size.
package blobstore

import (
	"context"
	"io"

	"github.com/fleetmetra/geoingest/internal/model"
)

// Client is the capability BatchShipper consumes. Upload overwrites
// silently if name already exists — the caller (BatchShipper) is
// responsible for choosing a name unique enough that this never
// matters in practice (family + date + processingId).
type Client interface {
	Upload(ctx context.Context, name string, body io.Reader, meta model.BlobMetadata) (model.UploadResult, error)
	List(ctx context.Context, prefix string, family *model.Family) ([]model.BlobInfo, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}
