package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fleetmetra/geoingest/internal/faults"
	"github.com/fleetmetra/geoingest/internal/model"
)

// Local is the simulation implementation: the same
// Client interface served by a local filesystem tree. Metadata is
// stored in a sidecar file "{name}.metadata.json". Must not be used in
// production — callers select it explicitly at construction, never by
// branching on a flag in the hot path.
type Local struct {
	root string
}

// NewLocal returns a Local client rooted at dir. The directory is
// created if it does not already exist.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root %q: %w", dir, err)
	}
	return &Local{root: dir}, nil
}

func (l *Local) paths(name string) (objectPath, metaPath string) {
	p := filepath.Join(l.root, filepath.FromSlash(name))
	return p, p + ".metadata.json"
}

func (l *Local) Upload(_ context.Context, name string, body io.Reader, meta model.BlobMetadata) (model.UploadResult, error) {
	objectPath, metaPath := l.paths(name)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return model.UploadResult{}, fmt.Errorf("blobstore: mkdir for %q: %w: %v", name, faults.ErrTransientIO, err)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("blobstore: read upload body for %q: %w: %v", name, faults.ErrTransientIO, err)
	}
	if err := os.WriteFile(objectPath, data, 0o644); err != nil {
		return model.UploadResult{}, fmt.Errorf("blobstore: write object %q: %w: %v", name, faults.ErrTransientIO, err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return model.UploadResult{}, fmt.Errorf("blobstore: marshal metadata for %q: %w", name, err)
	}
	if err := os.WriteFile(metaPath, metaBytes, 0o644); err != nil {
		return model.UploadResult{}, fmt.Errorf("blobstore: write metadata %q: %w: %v", name, faults.ErrTransientIO, err)
	}

	// The URI scheme "sim://" (rather than a filesystem path) lets a
	// paired warehouse.Simulate client map a blobURI straight back to
	// the name it can pass to Read, without leaking this store's
	// on-disk layout to callers.
	return model.UploadResult{URI: "sim://" + name, SizeBytes: int64(len(data))}, nil
}

func (l *Local) Read(_ context.Context, name string) ([]byte, error) {
	objectPath, _ := l.paths(name)
	data, err := os.ReadFile(objectPath)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %q: %w: %v", name, faults.ErrTransientIO, err)
	}
	return data, nil
}

func (l *Local) Delete(_ context.Context, name string) error {
	objectPath, metaPath := l.paths(name)
	if err := os.Remove(objectPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete %q: %w: %v", name, faults.ErrTransientIO, err)
	}
	_ = os.Remove(metaPath)
	return nil
}

func (l *Local) List(_ context.Context, prefix string, family *model.Family) ([]model.BlobInfo, error) {
	var out []model.BlobInfo
	searchRoot := filepath.Join(l.root, filepath.FromSlash(prefix))

	err := filepath.Walk(searchRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".metadata.json") {
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		meta, err := l.readMeta(name)
		if err != nil {
			return nil // sidecar missing or corrupt: skip silently, not fatal to the listing
		}
		if family != nil && meta.Family != *family {
			return nil
		}

		out = append(out, model.BlobInfo{
			Name:      name,
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
			Metadata:  meta,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("blobstore: list %q: %w: %v", prefix, faults.ErrTransientIO, err)
	}
	return out, nil
}

func (l *Local) readMeta(name string) (model.BlobMetadata, error) {
	_, metaPath := l.paths(name)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return model.BlobMetadata{}, err
	}
	var meta model.BlobMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return model.BlobMetadata{}, err
	}
	return meta, nil
}
