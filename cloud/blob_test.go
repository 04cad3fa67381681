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
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://bucket/file.nc":  true,
		"s3://bucket/file.nc":  true,
		"file://bucket/a.nc":   true,
		"/home/user/file.nc":   false,
		"http://host/file.nc":  false,
		"relative/path/out.nc": false,
	} {
		if have := IsBlob(path); have != want {
			t.Errorf("%s: want %v but have %v", path, want, have)
		}
	}
}

func TestExpandShp(t *testing.T) {
	have := ExpandShp("dir/regions.shp")
	want := []string{"dir/regions.shp", "dir/regions.dbf", "dir/regions.shx", "dir/regions.prj"}
	if !reflect.DeepEqual(have, want) {
		t.Errorf("%v != %v", have, want)
	}
	if have := ExpandShp("out.nc"); !reflect.DeepEqual(have, []string{"out.nc"}) {
		t.Errorf("netCDF file expanded to %v", have)
	}
}

func TestParseLocation(t *testing.T) {
	l, err := ParseLocation("s3://bucket/dir/file.nc")
	if err != nil {
		t.Fatal(err)
	}
	want := Location{Provider: "s3", Bucket: "bucket", Key: "dir/file.nc"}
	if *l != want {
		t.Errorf("want %+v but have %+v", want, *l)
	}
	if l.String() != "s3://bucket/dir/file.nc" {
		t.Errorf("wrong address %s", l)
	}
}

func TestOpenBucketInvalid(t *testing.T) {
	if _, err := OpenBucket(context.Background(), "ftp://bucket"); err == nil {
		t.Error("want error for invalid provider")
	}
	if _, _, err := openKey(context.Background(), "file://bucket"); err == nil {
		t.Error("want error for missing key")
	}
}

func TestFileBlobRoundTrip(t *testing.T) {
	const bucketDir = "testbucket"
	if err := os.Mkdir(bucketDir, os.ModePerm); err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(bucketDir)
	ctx := context.Background()

	local, err := ioutil.TempFile("", "oceanbudget_upload")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(local.Name())
	want := []byte("region statistics")
	local.Write(want)
	local.Close()

	const path = "file://" + bucketDir + "/stats.nc"
	if err := Upload(ctx, local.Name(), path); err != nil {
		t.Fatal(err)
	}
	have, err := ReadBlob(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if string(have) != string(want) {
		t.Errorf("want %q but have %q", want, have)
	}

	dir, err := ioutil.TempDir("", "oceanbudget_download")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	fname, err := Download(ctx, path, dir)
	if err != nil {
		t.Fatal(err)
	}
	if fname != filepath.Join(dir, "stats.nc") {
		t.Errorf("downloaded to %s", fname)
	}
	b, err := ioutil.ReadFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != string(want) {
		t.Errorf("download: want %q but have %q", want, b)
	}
}

func TestReadBlobMissing(t *testing.T) {
	const bucketDir = "testbucket_missing"
	if err := os.Mkdir(bucketDir, os.ModePerm); err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(bucketDir)
	old := MaxRetries
	MaxRetries = 0
	defer func() { MaxRetries = old }()
	if _, err := ReadBlob(context.Background(), "file://"+bucketDir+"/none.nc"); err == nil {
		t.Error("want error for missing blob")
	}
}
