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

package budgetutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/oceanbudget/cloud"
)

// maybeDownload checks if the input is an existing file locally.
// If not, it checks if the file is a URL or blob address.
// If it is, it downloads the file and
// returns the path to the downloaded file.
// For shapefiles, it downloads all associated files and
// returns the path to the file with the ".shp" extension.
func maybeDownload(ctx context.Context, path string, log logrus.FieldLogger) (string, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	// Check if local file exists. If it does, return the given path.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	isHTTP := strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
	if !isHTTP && !cloud.IsBlob(path) {
		return path, nil
	}

	// Prepare a temporary directory for the downloads.
	dir, err := ioutil.TempDir("", "oceanbudget")
	if err != nil {
		return path, fmt.Errorf("budgetutil: failed creating temporary download directory: %v", err)
	}
	log.WithField("source", path).Info("downloading")
	if isHTTP {
		return downloadHTTP(path, dir, log)
	}
	return cloud.Download(ctx, path, dir)
}

// downloadHTTP downloads a file and any shapefile support files from
// the specified URL into dir and returns the path to the downloaded file.
func downloadHTTP(path, dir string, log logrus.FieldLogger) (string, error) {
	fnames := cloud.ExpandShp(path)
	for _, fname := range fnames {
		local := filepath.Join(dir, filepath.Base(fname))
		err := backoff.RetryNotify(
			func() error { return getHTTP(fname, local) },
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cloud.MaxRetries),
			func(err error, d time.Duration) {
				log.WithField("wait", d).Warnf("%v: retrying", err)
			},
		)
		if err != nil {
			return path, err
		}
	}
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}

func getHTTP(url, local string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("budgetutil: downloading %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("budgetutil: downloading %s: %s", url, resp.Status)
	}
	w, err := os.Create(local)
	if err != nil {
		return fmt.Errorf("budgetutil: failed creating file for download: %v", err)
	}
	if _, err = io.Copy(w, resp.Body); err != nil {
		w.Close()
		return fmt.Errorf("budgetutil: downloading %s: %v", url, err)
	}
	return w.Close()
}
