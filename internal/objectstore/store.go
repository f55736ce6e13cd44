// Package objectstore uploads export artifacts to an S3-compatible bucket
// and hands back time-limited download links.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const linkTTL = 15 * time.Minute

type Store struct {
	client *minio.Client
	bucket string
}

// New connects to endpoint and creates bucket when it is missing.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Put uploads data and returns a presigned GET URL for it.
func (s *Store) Put(ctx context.Context, sheetID int64, filename, contentType string, data []byte) (string, error) {
	key := ObjectKey(sheetID, filename, time.Now())
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	link, err := s.client.PresignedGetObject(ctx, s.bucket, key, linkTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return link.String(), nil
}

// ObjectKey namespaces artifacts by sheet and export time.
func ObjectKey(sheetID int64, filename string, at time.Time) string {
	return path.Join("sheets", strconv.FormatInt(sheetID, 10), at.UTC().Format("20060102T150405Z"), path.Base(filename))
}
