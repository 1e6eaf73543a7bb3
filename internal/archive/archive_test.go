package archive

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"label-printer/internal/capture"
)

func pngBlobs(n int) []capture.Blob {
	blobs := make([]capture.Blob, 0, n)
	for i := 0; i < n; i++ {
		blobs = append(blobs, capture.Blob{
			Data:        []byte(fmt.Sprintf("\x89PNG\r\n\x1a\nlabel payload %d", i)),
			ContentType: capture.ContentTypePNG,
		})
	}
	return blobs
}

func TestBuild_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 2, 7} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			blobs := pngBlobs(n)

			archive, err := Build(blobs)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if archive.ContentType != ContentTypeZip {
				t.Errorf("unexpected content type %q", archive.ContentType)
			}

			entries, err := Open(archive.Data)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			want := make([]Entry, 0, n)
			for i, blob := range blobs {
				want = append(want, Entry{Name: fmt.Sprintf("label-%d.png", i+1), Data: blob.Data})
			}
			if diff := cmp.Diff(want, entries); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	blobs := pngBlobs(3)

	first, err := Build(blobs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := Build(blobs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("expected identical archives for identical input")
	}
}

func TestEntryName(t *testing.T) {
	if got := EntryName(0); got != "label-1.png" {
		t.Errorf("EntryName(0) = %q", got)
	}
	if got := EntryName(9); got != "label-10.png" {
		t.Errorf("EntryName(9) = %q", got)
	}
}

func TestOpen_Invalid(t *testing.T) {
	if _, err := Open([]byte("not a zip")); err == nil {
		t.Error("expected error for invalid archive")
	}
}
