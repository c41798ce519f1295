package app

import (
	"context"
	"errors"

	"vknotify/internal/storage"
)

// StopReason is how a run ended. Values double as the stored run status.
type StopReason string

const (
	StopDone     StopReason = storage.StatusDone
	StopFailed   StopReason = storage.StatusFailed
	StopCanceled StopReason = storage.StatusCanceled
)

// stopReasonOf classifies a finished run. Only the run context ending counts
// as canceled; a request timeout inside the client is a failure.
func stopReasonOf(ctx context.Context, err error) StopReason {
	switch {
	case err == nil:
		return StopDone
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return StopCanceled
	default:
		return StopFailed
	}
}
