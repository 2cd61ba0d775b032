package uploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"myperf/internal/config"
	"myperf/internal/util"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSUploader uploads run directories to Google Cloud Storage.
type GCSUploader struct {
	cfg    config.GCSConfig
	client *storage.Client
}

// NewGCS constructs an uploader from GCS configuration.
func NewGCS(cfg config.GCSConfig) (*GCSUploader, error) {
	if !cfg.Enabled {
		return &GCSUploader{cfg: cfg}, nil
	}
	opts := []option.ClientOption{}
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return &GCSUploader{cfg: cfg, client: client}, nil
}

// Enabled reports whether GCS uploads are configured.
func (u *GCSUploader) Enabled() bool {
	return u.cfg.Enabled
}

// UploadDir uploads a run directory and returns its GCS URL prefix.
func (u *GCSUploader) UploadDir(ctx context.Context, dir string) (string, error) {
	if !u.cfg.Enabled {
		return "", nil
	}
	if u.client == nil {
		return "", fmt.Errorf("gcs uploader is not initialized")
	}
	objects, location, err := runObjects(dir, u.cfg.Prefix)
	if err != nil {
		return "", err
	}
	for _, obj := range objects {
		if err := u.uploadFile(ctx, obj); err != nil {
			return "", fmt.Errorf("upload %s: %w", obj.Key, err)
		}
	}
	util.Infof("uploaded %d files to gs://%s/%s", len(objects), u.cfg.Bucket, location)
	return fmt.Sprintf("gs://%s/%s", u.cfg.Bucket, location), nil
}

func (u *GCSUploader) uploadFile(ctx context.Context, obj object) error {
	file, err := os.Open(obj.Path)
	if err != nil {
		return err
	}
	defer util.CloseWithErr(file, "gcs upload file")

	writer := u.client.Bucket(u.cfg.Bucket).Object(obj.Key).NewWriter(ctx)
	writer.ContentType = obj.ContentType
	if _, err := io.Copy(writer, file); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}
