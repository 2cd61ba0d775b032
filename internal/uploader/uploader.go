// Package uploader copies a finished run directory to object storage.
package uploader

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"myperf/internal/config"

	"github.com/pkg/errors"
)

// Uploader publishes the files of a run directory and returns the location.
type Uploader interface {
	Enabled() bool
	UploadDir(ctx context.Context, dir string) (string, error)
}

// NoopUploader is used when no storage backend is configured.
type NoopUploader struct{}

func (n NoopUploader) Enabled() bool {
	return false
}

func (n NoopUploader) UploadDir(ctx context.Context, dir string) (string, error) {
	return "", nil
}

// New returns an uploader for every enabled backend.
func New(cfg config.StorageConfig) (Uploader, error) {
	if !cfg.CloudEnabled() {
		return NoopUploader{}, nil
	}
	var targets Multi
	if cfg.S3.Enabled {
		u, err := NewS3(cfg.S3)
		if err != nil {
			return nil, errors.Wrap(err, "init s3 uploader")
		}
		targets = append(targets, u)
	}
	if cfg.GCS.Enabled {
		u, err := NewGCS(cfg.GCS)
		if err != nil {
			return nil, errors.Wrap(err, "init gcs uploader")
		}
		targets = append(targets, u)
	}
	if len(targets) == 1 {
		return targets[0], nil
	}
	return targets, nil
}

// Multi uploads to several backends and joins their locations.
type Multi []Uploader

func (m Multi) Enabled() bool {
	for _, u := range m {
		if u.Enabled() {
			return true
		}
	}
	return false
}

func (m Multi) UploadDir(ctx context.Context, dir string) (string, error) {
	locations := make([]string, 0, len(m))
	for _, u := range m {
		if !u.Enabled() {
			continue
		}
		loc, err := u.UploadDir(ctx, dir)
		if err != nil {
			return strings.Join(locations, ","), err
		}
		if loc != "" {
			locations = append(locations, loc)
		}
	}
	return strings.Join(locations, ","), nil
}

type object struct {
	Path        string
	Key         string
	ContentType string
}

// runObjects lists the regular files of dir as "<prefix>/<run>/<file>" keys,
// plus the "<prefix>/<run>/" location prefix.
func runObjects(dir, prefix string) ([]object, string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", err
	}
	base := filepath.Base(filepath.Clean(dir))
	location := path.Join(strings.Trim(prefix, "/"), base) + "/"
	objects := make([]object, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		objects = append(objects, object{
			Path:        filepath.Join(dir, entry.Name()),
			Key:         location + entry.Name(),
			ContentType: contentType(entry.Name()),
		})
	}
	return objects, location, nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".log", ".txt":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	case ".zst":
		return "application/zstd"
	}
	return "application/octet-stream"
}
