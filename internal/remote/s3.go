// S3-compatible Files adapter built on minio-go.
//
// Revision tokens are object ETags. S3 has no native compare-and-swap on
// plain buckets, so Update preconditions are emulated with a stat-compare
// immediately before the write; the index-file write window this leaves
// open is narrow and any lost race still surfaces on the next sync as a
// hash mismatch. Point a versioned bucket at this adapter to make
// ListRevisions useful.

package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"conceptarium/internal/models"
)

// S3Config configures the S3 adapter.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// S3Store implements Files against an S3-compatible bucket.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3Store connects to the configured endpoint.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Endpoint, err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// mapError translates minio errors into the domain taxonomy.
func (s *S3Store) mapError(op, path string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchVersion":
		return &models.NotFoundError{Name: path}
	case "PreconditionFailed":
		return &models.ConflictError{Path: path}
	}
	return &models.TransientError{Op: op, Err: err}
}

// Download implements Files.
func (s *S3Store) Download(ctx context.Context, path, rev string) (Content, error) {
	versionID := ""
	if rev != "" {
		info, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
		if err != nil {
			return Content{}, s.mapError("stat", path, err)
		}
		if info.ETag != rev {
			id, err := s.findVersion(ctx, path, rev)
			if err != nil {
				return Content{}, err
			}
			versionID = id
		}
	}
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{VersionID: versionID})
	if err != nil {
		return Content{}, s.mapError("download", path, err)
	}
	defer func() {
		_ = obj.Close()
	}()
	info, err := obj.Stat()
	if err != nil {
		return Content{}, s.mapError("download", path, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return Content{}, s.mapError("download", path, err)
	}
	return Content{Data: data, Rev: info.ETag}, nil
}

// findVersion locates the version id whose ETag matches rev.
func (s *S3Store) findVersion(ctx context.Context, path, rev string) (string, error) {
	opts := minio.ListObjectsOptions{Prefix: path, WithVersions: true}
	for info := range s.client.ListObjects(ctx, s.bucket, opts) {
		if info.Err != nil {
			return "", s.mapError("list", path, info.Err)
		}
		if info.Key == path && info.ETag == rev {
			return info.VersionID, nil
		}
	}
	return "", &models.NotFoundError{Name: path + "@" + rev}
}

// Upload implements Files.
func (s *S3Store) Upload(ctx context.Context, path string, data []byte, mode Mode) (string, error) {
	info, statErr := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	exists := statErr == nil
	if statErr != nil {
		if !models.IsNotFound(s.mapError("stat", path, statErr)) {
			return "", s.mapError("stat", path, statErr)
		}
	}
	if mode.IsAdd() && exists {
		return "", &models.ConflictError{Path: path}
	}
	if expected, ok := mode.IsUpdate(); ok {
		current := ""
		if exists {
			current = info.ETag
		}
		if current != expected {
			return "", &models.ConflictError{Path: path, ExpectedRev: expected}
		}
	}
	up, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", s.mapError("upload", path, err)
	}
	return up.ETag, nil
}

// Delete implements Files.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
	if err != nil {
		mapped := s.mapError("delete", path, err)
		if models.IsNotFound(mapped) {
			return nil
		}
		return mapped
	}
	return nil
}

// ListRevisions implements Files.
func (s *S3Store) ListRevisions(ctx context.Context, path string) ([]Revision, error) {
	opts := minio.ListObjectsOptions{Prefix: path, WithVersions: true}
	var out []Revision
	for info := range s.client.ListObjects(ctx, s.bucket, opts) {
		if info.Err != nil {
			return nil, s.mapError("list_revisions", path, info.Err)
		}
		if info.Key != path {
			continue
		}
		out = append(out, Revision{Rev: info.ETag, Modified: info.LastModified, Size: info.Size})
	}
	if len(out) == 0 {
		return nil, &models.NotFoundError{Name: path}
	}
	return out, nil
}
