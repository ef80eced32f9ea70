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

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SFTPSource fetches archives from sftp:// locations over an
// already-established SSH connection, via pkg/sftp (part of the
// teacher's own third_party/golibs dependency set).
type SFTPSource struct {
	sshClient *ssh.Client
}

// NewSFTPSource wraps an authenticated SSH client.
func NewSFTPSource(sshClient *ssh.Client) *SFTPSource {
	return &SFTPSource{sshClient: sshClient}
}

// Fetch downloads the full remote file named by an
// sftp://host/path/to/archive.zip URL. The host component of the URL is
// informational only — the real connection was established before
// NewSFTPSource was called.
func (s *SFTPSource) Fetch(ctx context.Context, location string) (Blob, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", location, err)
	}
	if u.Scheme != "sftp" {
		return nil, fmt.Errorf("not an sftp:// location: %s", location)
	}
	remotePath := strings.TrimPrefix(u.Path, "/")
	if remotePath == "" {
		return nil, fmt.Errorf("malformed sftp:// location %q: missing path", location)
	}

	client, err := sftp.NewClient(s.sshClient)
	if err != nil {
		return nil, fmt.Errorf("starting sftp session: %w", err)
	}
	defer client.Close()

	f, err := client.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("opening remote %s: %w", remotePath, err)
	}
	defer f.Close()

	done := make(chan struct{})
	var data []byte
	var readErr error
	go func() {
		data, readErr = io.ReadAll(f)
		close(done)
	}()

	select {
	case <-ctx.Done():
		// Closing f unblocks the in-flight Read so the goroutine above
		// actually exits instead of leaking, and the <-done after it
		// establishes a happens-before edge before we touch readErr/data
		// again (we don't, but this join is what makes that safe).
		f.Close()
		<-done
		return nil, ctx.Err()
	case <-done:
	}
	if readErr != nil {
		return nil, fmt.Errorf("downloading %s: %w", remotePath, readErr)
	}

	return newMemBlob(data), nil
}
