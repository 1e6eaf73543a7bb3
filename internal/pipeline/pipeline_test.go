package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"label-printer/internal/archive"
	"label-printer/internal/capture"
)

type staticCollector struct {
	blobs []capture.Blob
	err   error
	calls int
}

func (c *staticCollector) Collect(ctx context.Context) ([]capture.Blob, error) {
	c.calls++
	return c.blobs, c.err
}

func labels(n int) []capture.Blob {
	blobs := make([]capture.Blob, 0, n)
	for i := 0; i < n; i++ {
		blobs = append(blobs, capture.Blob{
			Data:        []byte(fmt.Sprintf("png-%d", i)),
			ContentType: capture.ContentTypePNG,
		})
	}
	return blobs
}

func newPipeline(t *testing.T, c Collector) *Pipeline {
	t.Helper()
	p, err := New(c)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestCapture_SingleLabel(t *testing.T) {
	blobs := labels(1)
	result, err := newPipeline(t, &staticCollector{blobs: blobs}).Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	want := Result{IsArchive: false, Payload: blobs[0], Count: 1}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if got := result.FileName(); got != "label.png" {
		t.Errorf("FileName() = %q", got)
	}
}

func TestCapture_MultipleLabels(t *testing.T) {
	for _, n := range []int{2, 3, 12} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			blobs := labels(n)
			result, err := newPipeline(t, &staticCollector{blobs: blobs}).Capture(context.Background())
			if err != nil {
				t.Fatalf("Capture: %v", err)
			}
			if !result.IsArchive {
				t.Fatal("expected an archive")
			}
			if result.Payload.ContentType != archive.ContentTypeZip {
				t.Errorf("unexpected content type %q", result.Payload.ContentType)
			}
			if got := result.FileName(); got != "labels.zip" {
				t.Errorf("FileName() = %q", got)
			}

			entries, err := archive.Open(result.Payload.Data)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if len(entries) != n {
				t.Fatalf("expected %d entries, got %d", n, len(entries))
			}
			for i, entry := range entries {
				if want := fmt.Sprintf("label-%d.png", i+1); entry.Name != want {
					t.Errorf("entry %d named %q, want %q", i, entry.Name, want)
				}
				if !bytes.Equal(entry.Data, blobs[i].Data) {
					t.Errorf("entry %d content mismatch", i)
				}
			}
		})
	}
}

func TestCapture_NoLabels(t *testing.T) {
	_, err := newPipeline(t, &staticCollector{}).Capture(context.Background())
	if !errors.Is(err, ErrNoLabels) {
		t.Fatalf("expected ErrNoLabels, got %v", err)
	}
}

func TestCapture_CollectorFailure(t *testing.T) {
	failure := &capture.RasterizationError{Index: 2, Err: errors.New("tainted canvas")}
	_, err := newPipeline(t, &staticCollector{err: failure}).Capture(context.Background())

	var rasterizationError *capture.RasterizationError
	if !errors.As(err, &rasterizationError) {
		t.Fatalf("expected RasterizationError, got %v", err)
	}
}

func TestCapture_Idempotent(t *testing.T) {
	collector := &staticCollector{blobs: labels(4)}
	p := newPipeline(t, collector)

	first, err := p.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	second, err := p.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if collector.calls != 2 {
		t.Errorf("expected each capture to collect independently, got %d collections", collector.calls)
	}
	if !bytes.Equal(first.Payload.Data, second.Payload.Data) {
		t.Error("expected byte-identical payloads for unchanged labels")
	}
}
