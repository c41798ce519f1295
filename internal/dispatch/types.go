package dispatch

import (
	"context"
	"time"

	"vknotify/internal/vkapi"
)

const (
	// ChunkSize is the most uids the API accepts in one call.
	ChunkSize = 100
	// DefaultRetryDelay is the pause before resubmitting a rate-limited chunk.
	DefaultRetryDelay = 500 * time.Millisecond
)

// Config tunes a Dispatcher. Zero values select defaults.
type Config struct {
	// ChunkSize is clamped to (0, 100].
	ChunkSize int
	// RetryDelay is never shorter than DefaultRetryDelay.
	RetryDelay time.Duration
	// RatePerSec paces attempts (retries included). 0 disables pacing.
	RatePerSec int
}

// RequestBuilder produces signed parameters for one chunk.
type RequestBuilder interface {
	Build(uids []int64, creds vkapi.Credentials, message string) vkapi.Params
}

// Sender performs one API call. Errors are transport failures; API errors
// come back inside the Response.
type Sender interface {
	Send(ctx context.Context, params vkapi.Params) (*vkapi.Response, error)
}

// Reporter receives progress after every successfully sent chunk.
type Reporter interface {
	Report(complete, total int)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(complete, total int)

func (f ReporterFunc) Report(complete, total int) { f(complete, total) }

// Result summarizes a run. On failure it holds the values reached before
// the failing chunk.
type Result struct {
	Total    int
	Complete int
	Chunks   int // chunks attempted, including the failing one
	Retries  int // rate-limited resubmissions
	Duration time.Duration
}
