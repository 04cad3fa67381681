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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spatialmodel/oceanbudget/cloud"
)

func TestMaybeDownloadLocal(t *testing.T) {
	if k, err := maybeDownload(context.Background(), "/dev/null", nil); err != nil || k != "/dev/null" {
		t.Error("Expected /dev/null, got ", k, err)
	}
}

func TestMaybeDownloadLocal2(t *testing.T) {
	if k, err := maybeDownload(context.Background(), "/blah/test/", nil); err != nil || k != "/blah/test/" {
		t.Error("Expected /blah/test/, got ", k, err)
	}
}

func TestMaybeDownloadRemoteFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	mr := cloud.MaxRetries
	cloud.MaxRetries = 0
	defer func() { cloud.MaxRetries = mr }()
	if _, err := maybeDownload(context.Background(), srv.URL+"/test.nc", nil); err == nil {
		t.Error("want error for missing remote file")
	}
}

func TestMaybeDownloadRemote(t *testing.T) {
	dir, err := ioutil.TempDir("", "oceanbudget_download")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	for _, ext := range []string{".shp", ".dbf", ".shx", ".prj"} {
		if err := ioutil.WriteFile(filepath.Join(dir, "regions"+ext), []byte(ext), 0644); err != nil {
			t.Fatal(err)
		}
	}
	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()

	k, err := maybeDownload(context.Background(), srv.URL+"/regions.shp", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(k, "regions.shp") || filepath.Dir(k) == dir {
		t.Error("Expected tempDir/regions.shp, got ", k)
	}
	defer os.RemoveAll(filepath.Dir(k))
	b, err := ioutil.ReadFile(strings.TrimSuffix(k, ".shp") + ".dbf")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != ".dbf" {
		t.Errorf("wrong support file contents %q", b)
	}
}

func TestUploader(t *testing.T) {
	var u uploader
	if have := u.maybeUpload("local.nc"); have != "local.nc" {
		t.Errorf("want local.nc but have %s", have)
	}
	have := u.maybeUpload("gs://bucket/dir/regions.shp")
	defer os.RemoveAll(u.dir)
	if u.err != nil {
		t.Fatal(u.err)
	}
	if want := filepath.Join(u.dir, "regions.shp"); have != want {
		t.Errorf("want %s but have %s", want, have)
	}
	if len(u.staged) != 4 {
		t.Errorf("want 4 files to upload but have %d", len(u.staged))
	}
	if u.staged[1].remote != "gs://bucket/dir/regions.dbf" {
		t.Errorf("wrong upload destination %s", u.staged[1].remote)
	}
}
