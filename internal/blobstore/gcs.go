package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/fleetmetra/geoingest/internal/faults"
	"github.com/fleetmetra/geoingest/internal/model"
	"github.com/fleetmetra/geoingest/internal/resilience"
)

// GCS is the production Client backed by Google Cloud Storage. Object
// metadata carries the BlobMetadata fields as string key/value pairs,
// GCS's native metadata mechanism, rather than a sidecar file.
type GCS struct {
	client  *gcs.Client
	bucket  string
	breaker *resilience.Breaker
}

// NewGCS wraps an existing *storage.Client scoped to bucket. The caller
// owns the client's lifecycle.
func NewGCS(client *gcs.Client, bucket string, breaker *resilience.Breaker) *GCS {
	return &GCS{client: client, bucket: bucket, breaker: breaker}
}

func (g *GCS) Upload(ctx context.Context, name string, body io.Reader, meta model.BlobMetadata) (model.UploadResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("blobstore(gcs): read upload body for %q: %w: %v", name, faults.ErrTransientIO, err)
	}

	var result model.UploadResult
	err = g.breaker.Do(ctx, func() error {
		obj := g.client.Bucket(g.bucket).Object(name)
		w := obj.NewWriter(ctx)
		w.ContentType = "application/x-ndjson"
		w.Metadata = metadataMap(meta)

		if _, werr := w.Write(data); werr != nil {
			return werr
		}
		if cerr := w.Close(); cerr != nil {
			return cerr
		}
		result = model.UploadResult{
			URI:       fmt.Sprintf("gs://%s/%s", g.bucket, name),
			SizeBytes: w.Attrs().Size,
		}
		return nil
	})
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("blobstore(gcs): upload %q: %w", name, classify(err))
	}
	return result, nil
}

func (g *GCS) Read(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := g.breaker.Do(ctx, func() error {
		r, rerr := g.client.Bucket(g.bucket).Object(name).NewReader(ctx)
		if rerr != nil {
			return rerr
		}
		defer r.Close()
		b, rerr := io.ReadAll(r)
		if rerr != nil {
			return rerr
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore(gcs): read %q: %w", name, classify(err))
	}
	return data, nil
}

func (g *GCS) Delete(ctx context.Context, name string) error {
	err := g.breaker.Do(ctx, func() error {
		return g.client.Bucket(g.bucket).Object(name).Delete(ctx)
	})
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("blobstore(gcs): delete %q: %w", name, classify(err))
	}
	return nil
}

func (g *GCS) List(ctx context.Context, prefix string, family *model.Family) ([]model.BlobInfo, error) {
	var out []model.BlobInfo
	err := g.breaker.Do(ctx, func() error {
		it := g.client.Bucket(g.bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
		for {
			attrs, iterErr := it.Next()
			if errors.Is(iterErr, iterator.Done) {
				return nil
			}
			if iterErr != nil {
				return iterErr
			}
			meta := metadataFromMap(attrs.Metadata)
			if family != nil && meta.Family != *family {
				continue
			}
			out = append(out, model.BlobInfo{
				Name:      attrs.Name,
				SizeBytes: attrs.Size,
				CreatedAt: attrs.Created,
				Metadata:  meta,
			})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore(gcs): list %q: %w", prefix, classify(err))
	}
	return out, nil
}

// metadataMap flattens BlobMetadata into the string map GCS stores
// alongside an object.
func metadataMap(meta model.BlobMetadata) map[string]string {
	return map[string]string{
		"dataType":     string(meta.Family),
		"processingId": meta.ProcessingID,
		"recordCount":  fmt.Sprintf("%d", meta.RecordCount),
		"uploadedAt":   meta.UploadedAt.UTC().Format(time.RFC3339Nano),
		"format":       meta.Format,
	}
}

func metadataFromMap(m map[string]string) model.BlobMetadata {
	meta := model.BlobMetadata{
		Family:       model.Family(m["dataType"]),
		ProcessingID: m["processingId"],
		Format:       m["format"],
	}
	if t, err := time.Parse(time.RFC3339Nano, m["uploadedAt"]); err == nil {
		meta.UploadedAt = t
	}
	fmt.Sscanf(m["recordCount"], "%d", &meta.RecordCount)
	return meta
}

// classify maps a GCS/HTTP error onto the pipeline's error taxonomy.
// 4xx responses other than 429 are configuration problems (bad bucket,
// auth denied); everything else — network errors, 5xx, 429 — is
// transient and will be retried on the next cycle via the backup path.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != 429 {
			return fmt.Errorf("%w: %v", faults.ErrPermanentConfig, err)
		}
	}
	return fmt.Errorf("%w: %v", faults.ErrTransientIO, err)
}
