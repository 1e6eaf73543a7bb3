package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"label-printer/internal/archive"
	"label-printer/internal/capture"
)

const instrumentationName = "label-printer/internal/pipeline"

var ErrNoLabels = errors.New("no labels found on page")

// Result is the deliverable payload of one capture.
type Result struct {
	IsArchive bool
	Payload   capture.Blob
	// Count is the number of labels the payload was built from.
	Count int
}

// FileName is the name the payload is saved under.
func (r Result) FileName() string {
	if r.IsArchive {
		return "labels." + archive.Extension
	}
	return "label.png"
}

type Collector interface {
	Collect(ctx context.Context) ([]capture.Blob, error)
}

type Pipeline struct {
	collector Collector
	tracer    trace.Tracer
	captured  metric.Int64Counter
}

func New(collector Collector) (*Pipeline, error) {
	captured, err := otel.Meter(instrumentationName).Int64Counter("labels_captured",
		metric.WithDescription("Number of label elements rasterized"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	return &Pipeline{
		collector: collector,
		tracer:    otel.Tracer(instrumentationName),
		captured:  captured,
	}, nil
}

// Capture rasterizes the current labels into a single image, or into an
// archive when more than one label is present. The decision is made on the
// number of collected images, not on a separate page query.
func (p *Pipeline) Capture(ctx context.Context) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "Capture")
	defer span.End()

	blobs, err := p.collector.Collect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("labels.count", len(blobs)))
	p.captured.Add(ctx, int64(len(blobs)))

	switch len(blobs) {
	case 0:
		return Result{}, ErrNoLabels
	case 1:
		return Result{IsArchive: false, Payload: blobs[0], Count: 1}, nil
	}

	payload, err := archive.Build(blobs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, fmt.Errorf("failed to build archive: %w", err)
	}

	return Result{IsArchive: true, Payload: payload, Count: len(blobs)}, nil
}
