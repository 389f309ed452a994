package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local directory driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
)

// BlobStore writes run reports to a gocloud.dev bucket.
type BlobStore struct {
	bucket  *blob.Bucket
	baseURI string // "gs://bucket", "s3://bucket" or "file:///dir"
	prefix  string
}

// NewS3Store creates a new S3-compatible store.
// Works with AWS S3, Backblaze B2, Cloudflare R2, and MinIO.
func NewS3Store(ctx context.Context, bucketName, prefix, endpoint, region string) (*BlobStore, error) {
	// Build URL for gocloud.dev
	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		params.Set("s3ForcePathStyle", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	return &BlobStore{bucket: bucket, baseURI: "s3://" + bucketName, prefix: prefix}, nil
}

// NewGCSStore creates a new GCS store.
func NewGCSStore(ctx context.Context, bucketName, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	return &BlobStore{bucket: bucket, baseURI: "gs://" + bucketName, prefix: prefix}, nil
}

// NewFileBlobStore creates a bucket backed by a local directory.
func NewFileBlobStore(ctx context.Context, dir, prefix string) (*BlobStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", abs, err)
	}

	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	bucket, err := blob.OpenBucket(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("open file bucket %s: %w", abs, err)
	}

	return &BlobStore{bucket: bucket, baseURI: u.String(), prefix: prefix}, nil
}

// WriteReport writes parquet bytes to the bucket.
func (s *BlobStore) WriteReport(ctx context.Context, ref RunRef, data []byte) error {
	return s.write(ctx, ref.Path(s.prefix), data, "application/vnd.apache.parquet")
}

// WriteManifest writes a manifest file to the bucket.
func (s *BlobStore) WriteManifest(ctx context.Context, ref RunRef, manifest *Manifest) error {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return s.write(ctx, ref.ManifestPath(s.prefix), data, "application/json")
}

func (s *BlobStore) write(ctx context.Context, key string, data []byte, contentType string) error {
	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}

	return nil
}

// Exists checks if a run report already exists in the bucket.
func (s *BlobStore) Exists(ctx context.Context, ref RunRef) (bool, error) {
	return s.bucket.Exists(ctx, ref.Path(s.prefix))
}

// URI returns the canonical URI for the given key.
func (s *BlobStore) URI(key string) string {
	return s.baseURI + "/" + key
}

// ReportURI returns the canonical URI of a run's outcomes file.
func (s *BlobStore) ReportURI(ref RunRef) string {
	return s.URI(ref.Path(s.prefix))
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
