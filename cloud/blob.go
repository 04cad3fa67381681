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

package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/go-cloud/blob"
	"github.com/sirupsen/logrus"
)

// MaxRetries is the number of times a failed transfer is retried.
var MaxRetries uint64 = 5

// Log receives messages about retried transfers.
var Log logrus.FieldLogger = logrus.StandardLogger()

func retry(op backoff.Operation, what string) error {
	return backoff.RetryNotify(op,
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), MaxRetries),
		func(err error, d time.Duration) {
			Log.WithFields(logrus.Fields{
				"transfer": what,
				"wait":     d,
			}).Warnf("%v: retrying", err)
		})
}

// ReadBlob reads the blob at path, which must be in the format
// 'provider://bucket/key'.
func ReadBlob(ctx context.Context, path string) ([]byte, error) {
	bucket, key, err := openKey(ctx, path)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	err = retry(func() error {
		b.Reset()
		r, err := bucket.NewReader(ctx, key)
		if err != nil {
			return fmt.Errorf("cloud: reading blob %s: %v", path, err)
		}
		defer r.Close()
		if _, err = io.Copy(&b, r); err != nil {
			return fmt.Errorf("cloud: reading blob %s: %v", path, err)
		}
		return nil
	}, path)
	if err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// WriteBlob writes data to the blob at path, which must be in the format
// 'provider://bucket/key'.
func WriteBlob(ctx context.Context, path string, data []byte) error {
	bucket, key, err := openKey(ctx, path)
	if err != nil {
		return err
	}
	return retry(func() error {
		w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
		if err != nil {
			return fmt.Errorf("cloud: creating writer for blob %s: %v", path, err)
		}
		if _, err = io.Copy(w, bytes.NewReader(data)); err != nil {
			w.Close()
			return fmt.Errorf("cloud: copying blob %s: %v", path, err)
		}
		if err = w.Close(); err != nil {
			return fmt.Errorf("cloud: writing blob %s: %v", path, err)
		}
		return nil
	}, path)
}

// Download copies the blob at path, along with any shapefile support
// files, into dir and returns the local path of the main file.
func Download(ctx context.Context, path, dir string) (string, error) {
	files := ExpandShp(path)
	for _, f := range files {
		data, err := ReadBlob(ctx, f)
		if err != nil {
			return "", err
		}
		if err := ioutil.WriteFile(filepath.Join(dir, filepath.Base(f)), data, 0644); err != nil {
			return "", fmt.Errorf("cloud: saving download of %s: %v", f, err)
		}
	}
	return filepath.Join(dir, filepath.Base(files[0])), nil
}

// Upload copies the local file to the blob at path.
func Upload(ctx context.Context, local, path string) error {
	r, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("cloud: opening file '%s' for upload: %v", local, err)
	}
	defer r.Close()
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return fmt.Errorf("cloud: reading file '%s' for upload: %v", local, err)
	}
	return WriteBlob(ctx, path, data)
}

// ExpandShp returns the given file + associated [.dbf, .shx, .prj]
// files if the given file has the .shp extension, and returns the given
// file otherwise
func ExpandShp(filename string) []string {
	o := []string{filename}
	ext := filepath.Ext(filename)
	if ext != ".shp" {
		return o
	}
	for _, newExt := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, filename[0:len(filename)-4]+newExt)
	}
	return o
}
