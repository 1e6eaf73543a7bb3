package controller

import (
	"context"
	"errors"

	"label-printer/internal/capture"
	"label-printer/internal/interact"
	"label-printer/internal/pipeline"
	"label-printer/internal/printserver"
	"label-printer/internal/session"
)

// quiet reports whether err ends an operation without being a failure.
func quiet(err error) bool {
	return errors.Is(err, session.ErrAddressRequired) ||
		errors.Is(err, pipeline.ErrNoLabels) ||
		errors.Is(err, context.Canceled)
}

// Describe turns an operation error into the notice shown to the user.
func Describe(err error) interact.Notice {
	var rasterizationError *capture.RasterizationError

	switch {
	case errors.Is(err, session.ErrAddressRequired):
		return interact.Notice{Level: interact.LevelInfo, Title: "AddressRequiredError", Message: err.Error()}
	case errors.Is(err, pipeline.ErrNoLabels):
		return interact.Notice{Level: interact.LevelInfo, Message: "no labels found"}
	case errors.Is(err, context.Canceled):
		return interact.Notice{Level: interact.LevelInfo, Message: "cancelled"}
	case errors.Is(err, session.ErrCredentialsRequired):
		return interact.Notice{Level: interact.LevelError, Title: "CredentialsRequiredError", Message: err.Error()}
	case errors.As(err, &rasterizationError):
		return interact.Notice{Level: interact.LevelError, Title: "RasterizationError", Message: rasterizationError.Error()}
	}
	if kind, message, ok := printserver.Describe(err); ok {
		return interact.Notice{Level: interact.LevelError, Title: kind, Message: message}
	}
	return interact.Notice{Level: interact.LevelError, Title: "Error", Message: err.Error()}
}
