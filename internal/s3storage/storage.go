// Package s3storage archives stored certificates and dossiers to MinIO/S3.
package s3storage

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures the archive.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// Prefix is prepended to every object key.
	Prefix string
}

// Files resolves a stored document name to its path on disk.
type Files interface {
	Path(name string) (string, error)
}

// Archive copies files from the document directory into a bucket.
type Archive struct {
	client *minio.Client
	files  Files
	bucket string
	region string
	prefix string
}

// New creates a MinIO client for opts.
func New(opts Options, files Files) (*Archive, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3storage: bucket is required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "documents"
	}
	return &Archive{client: client, files: files, bucket: opts.Bucket, region: opts.Region, prefix: prefix}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

// Archive uploads every named file. It keeps going after a failure and
// returns all errors joined.
func (a *Archive) Archive(ctx context.Context, names ...string) error {
	var errs []error
	for _, name := range names {
		if err := a.upload(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ObjectKey is where name is stored in the bucket.
func (a *Archive) ObjectKey(name string) string {
	return path.Join(a.prefix, name)
}

func (a *Archive) upload(ctx context.Context, name string) error {
	local, err := a.files.Path(name)
	if err != nil {
		return err
	}
	opts := minio.PutObjectOptions{ContentType: "application/pdf"}
	if _, err := a.client.FPutObject(ctx, a.bucket, a.ObjectKey(name), local, opts); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}
