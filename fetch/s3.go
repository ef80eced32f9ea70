// Copyright 2024 The Flashforge Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
)

// S3Source fetches archives from s3:// locations via minio-go, the same
// S3-compatible client the pack's storage provider uses (see
// cloupeer's internal/hub/storage/minio.go).
type S3Source struct {
	client *minio.Client
}

// NewS3Source wraps an already-configured minio client.
func NewS3Source(client *minio.Client) *S3Source {
	return &S3Source{client: client}
}

// Fetch downloads the full object named by an s3://bucket/key URL.
func (s *S3Source) Fetch(ctx context.Context, location string) (Blob, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", location, err)
	}
	if u.Scheme != "s3" {
		return nil, fmt.Errorf("not an s3:// location: %s", location)
	}

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("malformed s3:// location %q: want s3://bucket/key", location)
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("opening s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", bucket, key, err)
	}

	return newMemBlob(data), nil
}
