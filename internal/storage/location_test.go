package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw  string
		want Location
	}{
		{"s3://bucket/runs/a/", Location{Scheme: SchemeS3, Bucket: "bucket", Prefix: "runs/a"}},
		{"gs://bucket", Location{Scheme: SchemeGCS, Bucket: "bucket"}},
		{"/tmp/ckpt", Location{Scheme: SchemeLocal, Prefix: "/tmp/ckpt"}},
		{"file:///tmp/ckpt", Location{Scheme: SchemeLocal, Prefix: "/tmp/ckpt"}},
		{"relative/dir", Location{Scheme: SchemeLocal, Prefix: "relative/dir"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			if err != nil {
				t.Fatalf("ParseLocation failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseLocation_Invalid(t *testing.T) {
	for _, raw := range []string{"", "hdfs://nn/path", "s3:///key"} {
		if _, err := ParseLocation(raw); !errors.Is(err, ErrInvalidURI) {
			t.Errorf("ParseLocation(%q) = %v, want ErrInvalidURI", raw, err)
		}
	}
}

func TestLocationString(t *testing.T) {
	loc := Location{Scheme: SchemeS3, Bucket: "b", Prefix: "p/q"}
	if got := loc.String(); got != "s3://b/p/q" {
		t.Errorf("got %q", got)
	}
	if got := ObjectPath(loc, "name"); got != "p/q/name" {
		t.Errorf("ObjectPath = %q", got)
	}
	if got := ObjectPath(Location{Scheme: SchemeLocal, Prefix: "/x"}, "name"); got != "name" {
		t.Errorf("local ObjectPath = %q", got)
	}
}

func TestOpener_ResolveDefaults(t *testing.T) {
	o := NewOpener(Options{DefaultScheme: SchemeS3, DefaultBucket: "ckpts"})
	loc, err := o.Resolve("/runs/a/")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := Location{Scheme: SchemeS3, Bucket: "ckpts", Prefix: "runs/a"}
	if loc != want {
		t.Errorf("got %+v, want %+v", loc, want)
	}

	local := NewOpener(Options{LocalBase: "/data"})
	loc, err = local.Resolve("runs")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if loc.Prefix != "/data/runs" {
		t.Errorf("got prefix %q, want /data/runs", loc.Prefix)
	}

	noBucket := NewOpener(Options{DefaultScheme: SchemeGCS})
	if _, err := noBucket.Resolve("runs"); !errors.Is(err, ErrInvalidURI) {
		t.Errorf("expected ErrInvalidURI, got %v", err)
	}
}

func TestOpener_CachesStores(t *testing.T) {
	created := 0
	o := NewOpener(Options{})
	o.newS3 = func(ctx context.Context, bucket string, cfg S3Config) (BlobStore, error) {
		created++
		return NewLocalStore(t.TempDir())
	}

	ctx := context.Background()
	a, err := o.Open(ctx, Location{Scheme: SchemeS3, Bucket: "b", Prefix: "x"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	b, err := o.Open(ctx, Location{Scheme: SchemeS3, Bucket: "b", Prefix: "y"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if a != b || created != 1 {
		t.Errorf("expected one cached store, created %d", created)
	}
	if err := o.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpener_ReadBlobLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.json")
	if err := os.WriteFile(path, []byte(`{"T":[[1]]}`), 0644); err != nil {
		t.Fatalf("failed to write blob: %v", err)
	}

	o := NewOpener(Options{})
	data, err := o.ReadBlob(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadBlob failed: %v", err)
	}
	if string(data) != `{"T":[[1]]}` {
		t.Errorf("got %q", data)
	}

	missing := filepath.Join(dir, "absent", "x.json")
	if _, err := o.ReadBlob(context.Background(), missing); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "absent")); !os.IsNotExist(err) {
		t.Error("ReadBlob must not create directories")
	}
}

func TestOpener_ReadBlobBucketOnly(t *testing.T) {
	o := NewOpener(Options{})
	if _, err := o.ReadBlob(context.Background(), "gs://bucket"); !errors.Is(err, ErrInvalidURI) {
		t.Errorf("expected ErrInvalidURI, got %v", err)
	}
}

func TestNewGCSStore_MissingCredentials(t *testing.T) {
	_, err := NewGCSStore(context.Background(), "bucket", GCSConfig{CredentialsFile: "/nonexistent/key.json"})
	if err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}
