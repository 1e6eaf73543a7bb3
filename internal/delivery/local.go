package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"label-printer/internal/pipeline"
	"label-printer/internal/storage"
)

// Local saves capture results as files.
type Local struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewLocal(s storage.Storage, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{storage: s, logger: logger}
}

// Deliver stores the payload as label.png or labels.zip and returns where it went.
func (l *Local) Deliver(ctx context.Context, result pipeline.Result) (string, error) {
	location, err := l.storage.Put(ctx, result.FileName(), result.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to save %s: %w", result.FileName(), err)
	}

	l.logger.InfoContext(ctx, "labels saved", "location", location, "labels", result.Count, "bytes", result.Payload.Len())
	return location, nil
}
