// Package controller drives the print and download controls of the label strip.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"label-printer/internal/interact"
	"label-printer/internal/pipeline"
	"label-printer/internal/printserver"
	"label-printer/internal/session"
)

const instrumentationName = "label-printer/internal/controller"

var (
	ErrBusy   = errors.New("control is busy")
	ErrHidden = errors.New("controls are hidden")
)

type Capturer interface {
	Capture(ctx context.Context) (pipeline.Result, error)
}

type LocalDeliverer interface {
	Deliver(ctx context.Context, result pipeline.Result) (string, error)
}

type RemoteDeliverer interface {
	Deliver(ctx context.Context, result pipeline.Result, address string) (printserver.Receipt, error)
}

type SessionResolver interface {
	ResolveStatus(ctx context.Context) (session.State, error)
}

// Control is one button of the strip. A busy control ignores further triggers.
type Control struct {
	Name string
	busy atomic.Bool
}

func (c *Control) Busy() bool {
	return c.busy.Load()
}

func (c *Control) acquire() bool {
	return c.busy.CompareAndSwap(false, true)
}

func (c *Control) release() {
	c.busy.Store(false)
}

type Controls struct {
	Print    Control
	Download Control
	Hidden   atomic.Bool
}

type Controller struct {
	Controls Controls

	capturer   Capturer
	local      LocalDeliverer
	remote     RemoteDeliverer
	session    SessionResolver
	interactor interact.Interactor
	logger     *slog.Logger

	tracer     trace.Tracer
	operations metric.Int64Counter
}

type Options struct {
	Capturer   Capturer
	Local      LocalDeliverer
	Remote     RemoteDeliverer
	Session    SessionResolver
	Interactor interact.Interactor
	Logger     *slog.Logger
}

func New(options Options) (*Controller, error) {
	operations, err := otel.Meter(instrumentationName).Int64Counter("label_operations",
		metric.WithDescription("Number of print and download operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		capturer:   options.Capturer,
		local:      options.Local,
		remote:     options.Remote,
		session:    options.Session,
		interactor: options.Interactor,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		operations: operations,
	}
	c.Controls.Print.Name = "print"
	c.Controls.Download.Name = "download"
	return c, nil
}

// Hide removes the strip. Operations already running finish normally.
func (c *Controller) Hide() {
	c.Controls.Hidden.Store(true)
}

// Download captures the labels and saves them locally.
func (c *Controller) Download(ctx context.Context) error {
	return c.trigger(ctx, &c.Controls.Download, func(ctx context.Context) (string, error) {
		result, err := c.capturer.Capture(ctx)
		if err != nil {
			return "", err
		}
		location, err := c.local.Deliver(ctx, result)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved %s.", location), nil
	})
}

// Print resolves an authenticated session, captures the labels and submits
// them to the print queue.
func (c *Controller) Print(ctx context.Context) error {
	return c.trigger(ctx, &c.Controls.Print, func(ctx context.Context) (string, error) {
		state, err := c.session.ResolveStatus(ctx)
		if err != nil {
			return "", err
		}
		result, err := c.capturer.Capture(ctx)
		if err != nil {
			return "", err
		}
		receipt, err := c.remote.Deliver(ctx, result, state.ServerAddress)
		if err != nil {
			return "", err
		}
		return receipt.String(), nil
	})
}

func (c *Controller) trigger(ctx context.Context, control *Control, operation func(context.Context) (string, error)) error {
	if c.Controls.Hidden.Load() {
		return ErrHidden
	}
	if !control.acquire() {
		c.logger.DebugContext(ctx, "ignoring trigger while busy", "control", control.Name)
		return ErrBusy
	}
	defer control.release()

	operationID := uuid.NewString()
	logger := c.logger.With("control", control.Name, "operation", operationID)

	ctx, span := c.tracer.Start(ctx, control.Name, trace.WithAttributes(attribute.String("operation.id", operationID)))
	defer span.End()

	message, err := operation(ctx)
	if err != nil {
		outcome := "error"
		if quiet(err) {
			outcome = "aborted"
		}
		c.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("control", control.Name),
			attribute.String("outcome", outcome),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		logger.WarnContext(ctx, "operation failed", "error", err)
		c.interactor.Notify(Describe(err))
		return err
	}

	c.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("control", control.Name),
		attribute.String("outcome", "success"),
	))
	logger.InfoContext(ctx, "operation finished", "message", message)
	c.interactor.Notify(interact.Notice{Level: interact.LevelInfo, Message: message})
	return nil
}
