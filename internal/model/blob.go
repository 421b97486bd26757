package model

import "time"

// BlobFormat is the only content encoding this pipeline ever writes.
const BlobFormat = "newline_delimited_json"

// BlobMetadata is attached to every uploaded blob so a reader can
// identify its contents without parsing the body.
type BlobMetadata struct {
	Family       Family    `json:"dataType"`
	ProcessingID string    `json:"processingId"`
	RecordCount  int       `json:"recordCount"`
	UploadedAt   time.Time `json:"uploadedAt"`
	Format       string    `json:"format"`
}

// BlobInfo describes a blob as returned by BlobStoreClient.List.
type BlobInfo struct {
	Name      string
	SizeBytes int64
	CreatedAt time.Time
	Metadata  BlobMetadata
}

// UploadResult is returned by BlobStoreClient.Upload.
type UploadResult struct {
	URI       string
	SizeBytes int64
}
