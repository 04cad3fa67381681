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
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/spatialmodel/oceanbudget/cloud"
)

// staged is an output written locally and copied to blob storage when
// the run finishes.
type staged struct {
	local, remote string
}

// uploader stages outputs addressed to blob storage in a temporary
// directory.
type uploader struct {
	staged []staged
	dir    string
	err    error
}

// maybeUpload returns the path an output should be written to. Local
// paths are returned unchanged. A blob address is mapped to a file in
// the staging directory and, along with any shapefile support files,
// is queued for uploadOutput.
func (u *uploader) maybeUpload(path string) string {
	if u.err != nil {
		return ""
	}
	if !cloud.IsBlob(path) {
		return path
	}
	if u.dir == "" {
		if u.dir, u.err = ioutil.TempDir("", "oceanbudget"); u.err != nil {
			return ""
		}
	}
	files := cloud.ExpandShp(path)
	for _, f := range files {
		u.staged = append(u.staged, staged{local: filepath.Join(u.dir, filepath.Base(f)), remote: f})
	}
	return u.staged[len(u.staged)-len(files)].local
}

// uploadOutput copies the staged files to blob storage and removes the
// staging directory.
func (u *uploader) uploadOutput(ctx context.Context) error {
	if u.err != nil {
		return u.err
	}
	for _, s := range u.staged {
		if err := cloud.Upload(ctx, s.local, s.remote); err != nil {
			return err
		}
	}
	if u.dir != "" {
		return os.RemoveAll(u.dir)
	}
	return nil
}
