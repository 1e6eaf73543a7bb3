package capture

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type Collector struct {
	Page Page
	// Concurrency bounds the number of rasterizations in flight. Values below 1 mean 1.
	Concurrency int
}

func NewCollector(page Page, concurrency int) *Collector {
	return &Collector{
		Page:        page,
		Concurrency: concurrency,
	}
}

// Collect rasterizes every label on the page. The returned blobs are in DOM
// order regardless of the order in which rasterizations finish. Any failure
// aborts the whole collection.
func (c *Collector) Collect(ctx context.Context) ([]Blob, error) {
	elements, err := c.Page.Labels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}

	blobs := make([]Blob, len(elements))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(c.Concurrency, 1))
	for i, element := range elements {
		eg.Go(func() error {
			blob, err := element.Rasterize(ctx)
			if err != nil {
				return &RasterizationError{Index: i, Err: err}
			}
			if blob.ContentType == "" {
				blob.ContentType = ContentTypePNG
			}
			blobs[i] = blob
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return blobs, nil
}
