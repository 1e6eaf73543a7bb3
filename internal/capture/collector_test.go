package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeElement struct {
	data  string
	delay time.Duration
	err   error
}

func (e *fakeElement) Rasterize(ctx context.Context) (Blob, error) {
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return Blob{}, ctx.Err()
	}
	if e.err != nil {
		return Blob{}, e.err
	}
	return Blob{Data: []byte(e.data)}, nil
}

type fakePage struct {
	title    string
	elements []Element
	err      error
}

func (p *fakePage) Title(ctx context.Context) (string, error) {
	return p.title, nil
}

func (p *fakePage) Labels(ctx context.Context) ([]Element, error) {
	return p.elements, p.err
}

func (p *fakePage) Close() error {
	return nil
}

func TestCollectorCollect_PreservesDOMOrder(t *testing.T) {
	// Earlier elements finish last so completion order is the reverse of DOM order.
	page := &fakePage{}
	for i := 0; i < 5; i++ {
		page.elements = append(page.elements, &fakeElement{
			data:  fmt.Sprintf("label-%d", i),
			delay: time.Duration(5-i) * 10 * time.Millisecond,
		})
	}

	blobs, err := NewCollector(page, 5).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	want := []Blob{
		{Data: []byte("label-0"), ContentType: ContentTypePNG},
		{Data: []byte("label-1"), ContentType: ContentTypePNG},
		{Data: []byte("label-2"), ContentType: ContentTypePNG},
		{Data: []byte("label-3"), ContentType: ContentTypePNG},
		{Data: []byte("label-4"), ContentType: ContentTypePNG},
	}
	if diff := cmp.Diff(want, blobs); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCollectorCollect_AbortsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	page := &fakePage{
		elements: []Element{
			&fakeElement{data: "a"},
			&fakeElement{err: boom},
			&fakeElement{data: "c", delay: time.Second},
		},
	}

	blobs, err := NewCollector(page, 3).Collect(context.Background())
	if blobs != nil {
		t.Errorf("expected no partial results, got %d blobs", len(blobs))
	}

	var rasterizationError *RasterizationError
	if !errors.As(err, &rasterizationError) {
		t.Fatalf("expected RasterizationError, got %v", err)
	}
	if rasterizationError.Index != 1 {
		t.Errorf("expected failing index 1, got %d", rasterizationError.Index)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected error to wrap %v", boom)
	}
}

func TestCollectorCollect_SequentialByDefault(t *testing.T) {
	var inFlight, peak atomic.Int32
	page := &fakePage{}
	for i := 0; i < 4; i++ {
		page.elements = append(page.elements, trackingElement{inFlight: &inFlight, peak: &peak})
	}

	if _, err := NewCollector(page, 0).Collect(context.Background()); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := peak.Load(); got != 1 {
		t.Errorf("expected at most one rasterization in flight, got %d", got)
	}
}

type trackingElement struct {
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (e trackingElement) Rasterize(ctx context.Context) (Blob, error) {
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return Blob{Data: []byte{0x89}}, nil
}

func TestCollectorCollect_NoLabels(t *testing.T) {
	blobs, err := NewCollector(&fakePage{}, 1).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(blobs) != 0 {
		t.Errorf("expected no blobs, got %d", len(blobs))
	}
}

func TestCollectorCollect_QueryFailure(t *testing.T) {
	boom := errors.New("detached")
	_, err := NewCollector(&fakePage{err: boom}, 1).Collect(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
	var rasterizationError *RasterizationError
	if errors.As(err, &rasterizationError) {
		t.Errorf("query failure must not be reported as a rasterization error")
	}
}

func TestIsLabelsPage(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Labels", true},
		{"Order 42 - Labels", true},
		{"labels", false},
		{"", false},
		{"Dashboard", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := IsLabelsPage(tt.title); got != tt.want {
				t.Errorf("IsLabelsPage(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}
