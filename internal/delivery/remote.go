package delivery

import (
	"context"
	"log/slog"

	"label-printer/internal/capture"
	"label-printer/internal/pipeline"
	"label-printer/internal/printserver"
)

type Queue interface {
	Enqueue(ctx context.Context, address string, payload capture.Blob) (printserver.Receipt, error)
}

// Remote submits capture results to the print queue.
type Remote struct {
	queue  Queue
	logger *slog.Logger
}

func NewRemote(queue Queue, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{queue: queue, logger: logger}
}

func (r *Remote) Deliver(ctx context.Context, result pipeline.Result, address string) (printserver.Receipt, error) {
	receipt, err := r.queue.Enqueue(ctx, address, result.Payload)
	if err != nil {
		return printserver.Receipt{}, err
	}

	r.logger.InfoContext(ctx, "labels queued",
		"address", address,
		"archive", result.IsArchive,
		"addedItems", receipt.AddedItems,
		"positionInQueue", receipt.PositionInQueue,
	)
	return receipt, nil
}
