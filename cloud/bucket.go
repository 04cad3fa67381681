/*
Copyright © 2019 the OceanBudget authors.
This file is part of OceanBudget.

OceanBudget is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

OceanBudget is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with OceanBudget.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package cloud provides access to the blob storage locations that
// input and output files may be addressed by.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
)

// providers opens a bucket for each supported storage scheme: "file"
// for a local directory (e.g., for testing), "gs" for Google Cloud
// Storage and "s3" for AWS S3.
var providers = map[string]func(ctx context.Context, bucket string) (*blob.Bucket, error){
	"file": func(_ context.Context, dir string) (*blob.Bucket, error) { return fileblob.NewBucket(dir) },
	"gs":   openGCS,
	"s3":   openS3,
}

// IsBlob returns whether path is addressed to a supported blob
// storage provider, e.g. 'gs://bucket/file.nc'.
func IsBlob(path string) bool {
	for p := range providers {
		if strings.HasPrefix(path, p+"://") {
			return true
		}
	}
	return false
}

// Location is the address of a blob, 'provider://bucket/key'.
type Location struct {
	Provider, Bucket, Key string
}

// ParseLocation splits a blob address into its parts. The key may be
// empty.
func ParseLocation(path string) (*Location, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("cloud: parsing blob address '%s': %v", path, err)
	}
	if _, ok := providers[u.Scheme]; !ok {
		return nil, fmt.Errorf("cloud: unsupported storage provider '%s' in '%s'", u.Scheme, path)
	}
	return &Location{
		Provider: u.Scheme,
		Bucket:   u.Host,
		Key:      strings.TrimPrefix(u.Path, "/"),
	}, nil
}

func (l *Location) String() string {
	return l.Provider + "://" + l.Bucket + "/" + l.Key
}

// Open opens the bucket holding l.
func (l *Location) Open(ctx context.Context) (*blob.Bucket, error) {
	return providers[l.Provider](ctx, l.Bucket)
}

// OpenBucket opens the bucket named by 'provider://bucket'. Anything
// after the bucket name is ignored.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	l, err := ParseLocation(bucketName)
	if err != nil {
		return nil, err
	}
	return l.Open(ctx)
}

// openKey opens the bucket holding the blob at path and returns the
// blob's key within it.
func openKey(ctx context.Context, path string) (*blob.Bucket, string, error) {
	l, err := ParseLocation(path)
	if err != nil {
		return nil, "", err
	}
	if l.Key == "" {
		return nil, "", fmt.Errorf("cloud: blob address '%s' has no key", path)
	}
	b, err := l.Open(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("cloud: opening bucket for '%s': %v", path, err)
	}
	return b, l.Key, nil
}

// openGCS uses the application default credentials, see
// https://cloud.google.com/docs/authentication/getting-started.
func openGCS(ctx context.Context, bucket string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, bucket, c)
}

// openS3 reads credentials from AWS_ACCESS_KEY_ID and
// AWS_SECRET_ACCESS_KEY. The region is AWS_REGION, or us-east-2 if
// that is unset.
func openS3(ctx context.Context, bucket string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	s, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	})
	if err != nil {
		return nil, fmt.Errorf("cloud: creating AWS session: %v", err)
	}
	return s3blob.OpenBucket(ctx, s, bucket)
}
