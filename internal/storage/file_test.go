package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"label-printer/internal/capture"
)

func TestFileStoragePut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(context.Background(), FileConfig{Directory: filepath.Join(dir, "out")})
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}

	blob := capture.Blob{Data: []byte("\x89PNG"), ContentType: capture.ContentTypePNG}
	location, err := s.Put(context.Background(), "label.png", blob)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if want := filepath.Join(dir, "out", "label.png"); location != want {
		t.Errorf("location = %q, want %q", location, want)
	}

	got, err := os.ReadFile(location)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if diff := cmp.Diff(blob.Data, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the stored file, found %d entries", len(entries))
	}
}

func TestFileStoragePut_Overwrites(t *testing.T) {
	s, _ := NewFileStorage(context.Background(), FileConfig{Directory: t.TempDir()})

	if _, err := s.Put(context.Background(), "labels.zip", capture.Blob{Data: []byte("first")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	location, err := s.Put(context.Background(), "labels.zip", capture.Blob{Data: []byte("second")})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, _ := os.ReadFile(location)
	if string(got) != "second" {
		t.Errorf("expected latest content, got %q", got)
	}
}

func TestNew_Target(t *testing.T) {
	s, err := New(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := s.(*fileStorage); !ok {
		t.Errorf("expected file storage, got %T", s)
	}

	if _, err := New(context.Background(), "s3:///prefix"); err == nil {
		t.Error("expected error for S3 target without bucket")
	}
}
