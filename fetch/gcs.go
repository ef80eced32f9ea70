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

	"cloud.google.com/go/storage"
)

// GCSSource fetches archives from gs:// locations via the teacher
// pack's own cloud.google.com/go/storage client.
type GCSSource struct {
	client *storage.Client
}

// NewGCSSource wraps an already-authenticated storage client.
func NewGCSSource(client *storage.Client) *GCSSource {
	return &GCSSource{client: client}
}

// Fetch downloads the full object named by a gs://bucket/object URL into
// memory. Factory archives are tens to low hundreds of megabytes, small
// enough that buffering beats the complexity of a range-request-backed
// ReaderAt against a client library that doesn't expose one natively.
func (s *GCSSource) Fetch(ctx context.Context, location string) (Blob, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", location, err)
	}
	if u.Scheme != "gs" {
		return nil, fmt.Errorf("not a gs:// location: %s", location)
	}

	bucket := u.Host
	object := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || object == "" {
		return nil, fmt.Errorf("malformed gs:// location %q: want gs://bucket/object", location)
	}

	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("downloading gs://%s/%s: %w", bucket, object, err)
	}

	return newMemBlob(data), nil
}
