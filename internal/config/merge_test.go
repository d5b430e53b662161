package config

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func boolPtr(b bool) *bool { return &b }

func TestMerge(t *testing.T) {
	base := &Config{
		Version:     1,
		DataDir:     "/base",
		WriteScheme: SchemeFile,
		IPFS:        IPFS{APIURL: "http://base:5001", Headers: map[string]string{"A": "base", "B": "base"}},
		S3:          S3{Endpoint: "minio:9000", Bucket: "base", UseSSL: boolPtr(true)},
		Log:         Log{Level: "info"},
	}
	overlay := &Config{
		WriteScheme: SchemeIPFS,
		IPFS:        IPFS{Headers: map[string]string{"B": "overlay"}},
		S3:          S3{Bucket: "overlay", UseSSL: boolPtr(false)},
		Log:         Log{Format: FormatJSON},
	}

	got, err := Merge(base, overlay)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		Version:     1,
		DataDir:     "/base",
		WriteScheme: SchemeIPFS,
		IPFS:        IPFS{APIURL: "http://base:5001", Headers: map[string]string{"A": "base", "B": "overlay"}},
		S3:          S3{Endpoint: "minio:9000", Bucket: "overlay", UseSSL: boolPtr(false)},
		Log:         Log{Level: "info", Format: FormatJSON},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
	if base.IPFS.Headers["B"] != "base" {
		t.Error("Merge modified base headers")
	}
}

func TestMergeNil(t *testing.T) {
	c := &Config{Version: 1}
	if got, _ := Merge(nil, c); got != c {
		t.Error("nil base should return overlay")
	}
	if got, _ := Merge(c, nil); got != c {
		t.Error("nil overlay should return base")
	}
}

func TestMergeVersion(t *testing.T) {
	tests := []struct {
		base, overlay, want int
		err                 bool
	}{
		{0, 0, 0, false},
		{1, 0, 1, false},
		{0, 1, 1, false},
		{1, 1, 1, false},
		{1, 2, 0, true},
	}
	for _, tt := range tests {
		got, err := Merge(&Config{Version: tt.base}, &Config{Version: tt.overlay})
		if tt.err {
			if err == nil || !strings.Contains(err.Error(), "version mismatch") {
				t.Errorf("Merge(%d, %d) err = %v", tt.base, tt.overlay, err)
			}
			continue
		}
		if err != nil || got.Version != tt.want {
			t.Errorf("Merge(%d, %d) = %v, %v; want %d", tt.base, tt.overlay, got, err, tt.want)
		}
	}
}

func TestMergeAll(t *testing.T) {
	if _, err := MergeAll(nil); err == nil {
		t.Error("expected error for no configs")
	}
	got, err := MergeAll([]*Config{{Version: 1, DataDir: "/a"}, {DataDir: "/b"}, {CacheSize: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if got.DataDir != "/b" || got.CacheSize != 3 || got.Version != 1 {
		t.Errorf("MergeAll = %+v", got)
	}
}
