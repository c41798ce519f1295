package app

import (
	"context"
	"errors"

	"vknotify/internal/config"
	"vknotify/internal/recipients"
	"vknotify/internal/vkapi"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitUsage     = 1
	ExitConfig    = 2
	ExitInput     = 3
	ExitAPI       = 4
	ExitTransport = 5
	ExitCanceled  = 130
)

// ExitCode maps an error returned by the App to a process exit code.
func ExitCode(err error) int {
	var (
		cfgErr   *config.ConfigError
		inErr    *recipients.InputError
		apiErr   *vkapi.APIError
		transErr *vkapi.TransportError
	)
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitCanceled
	case errors.As(err, &cfgErr):
		return ExitConfig
	case errors.As(err, &inErr):
		return ExitInput
	case errors.As(err, &apiErr):
		return ExitAPI
	case errors.As(err, &transErr):
		return ExitTransport
	default:
		return ExitUsage
	}
}
