// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Mirror stores fetched tarballs so other instances can skip GitHub.
type Mirror interface {
	// Latest opens the most recent tarball for repoID/branch. It returns
	// ErrNoSnapshot when none exists.
	Latest(ctx context.Context, repoID, branch string) (io.ReadCloser, string, error)
	// Put uploads the tarball at path for repoID/branch at ref.
	Put(ctx context.Context, repoID, branch, ref, path string) error
}

// S3Config configures an S3-compatible mirror.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl,omitempty"`
}

// Enabled reports whether enough is configured to create a mirror.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.Bucket) != ""
}

// S3Mirror keeps tarballs at <bucket>/<repoID>/<branch>/<sha>.tar.gz.
type S3Mirror struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

// NewS3Mirror creates a mirror. The bucket is created on first use.
func NewS3Mirror(cfg S3Config) (*S3Mirror, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Mirror{client: client, bucket: bucket, region: region}, nil
}

func (m *S3Mirror) ensureBucket(ctx context.Context) error {
	m.initOnce.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err != nil {
			m.initErr = err
			return
		}
		if !exists {
			m.initErr = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region})
		}
	})
	return m.initErr
}

// Put uploads the tarball file at path.
func (m *S3Mirror) Put(ctx context.Context, repoID, branch, ref, path string) error {
	if err := m.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := m.client.FPutObject(ctx, m.bucket, objectKey(repoID, branch, ref), path, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	return err
}

// Latest opens the newest object under <repoID>/<branch>/.
func (m *S3Mirror) Latest(ctx context.Context, repoID, branch string) (io.ReadCloser, string, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return nil, "", fmt.Errorf("ensure bucket: %w", err)
	}

	var newest minio.ObjectInfo
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    objectPrefix(repoID, branch),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, "", obj.Err
		}
		if strings.HasSuffix(obj.Key, ".tar.gz") && obj.LastModified.After(newest.LastModified) {
			newest = obj
		}
	}
	if newest.Key == "" {
		return nil, "", ErrNoSnapshot
	}

	obj, err := m.client.GetObject(ctx, m.bucket, newest.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}
	return obj, refFromKey(newest.Key), nil
}

func objectPrefix(repoID, branch string) string {
	return url.PathEscape(repoID) + "/" + url.PathEscape(branch) + "/"
}

func objectKey(repoID, branch, ref string) string {
	return objectPrefix(repoID, branch) + ref + ".tar.gz"
}

func refFromKey(key string) string {
	key = key[strings.LastIndexByte(key, '/')+1:]
	return strings.TrimSuffix(key, ".tar.gz")
}
