package dispatch

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"vknotify/internal/vkapi"
	logx "vknotify/pkg/logx"
)

// Dispatcher drains a recipient list through the API. It is not safe for
// concurrent Run calls.
type Dispatcher struct {
	cfg      Config
	builder  RequestBuilder
	sender   Sender
	reporter Reporter
	log      logx.Logger

	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, builder RequestBuilder, sender Sender, reporter Reporter, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if builder == nil {
		builder = vkapi.NewBuilder()
	}
	if reporter == nil {
		reporter = ReporterFunc(func(int, int) {})
	}
	cfg = withDefaults(cfg)
	d := &Dispatcher{
		cfg:      cfg,
		builder:  builder,
		sender:   sender,
		reporter: reporter,
		log:      log,
		sleep:    sleepCtx,
	}
	if cfg.RatePerSec > 0 {
		// burst 1: the API counts requests per wall-clock second
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return d
}

func withDefaults(cfg Config) Config {
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > ChunkSize {
		cfg.ChunkSize = ChunkSize
	}
	if cfg.RetryDelay < DefaultRetryDelay {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.RatePerSec < 0 {
		cfg.RatePerSec = 0
	}
	return cfg
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config { return d.cfg }

// Run sends message to every recipient and reports progress after each
// chunk. It stops at the first fatal error: an *vkapi.APIError other than
// the rate-limit code, a *vkapi.TransportError, or ctx's error.
func (d *Dispatcher) Run(ctx context.Context, creds vkapi.Credentials, recipients []int64, message string) (res Result, err error) {
	start := time.Now()
	set := NewRecipientSet(recipients)
	res.Total = set.Total()
	defer func() { res.Duration = time.Since(start) }()

	if d.sender == nil {
		return res, errors.New("dispatch: no sender configured")
	}

	for !set.Empty() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		chunk := set.Take(d.cfg.ChunkSize)
		res.Chunks++

		if d.log.Enabled(logx.LevelDebug) {
			d.log.Debug("sending chunk",
				logx.Int("chunk", res.Chunks),
				logx.Int("size", len(chunk)),
				logx.Int("remaining", set.Remaining()),
			)
		}
		retries, err := d.sendChunk(ctx, res.Chunks, chunk, creds, message)
		res.Retries += retries
		if err != nil {
			d.log.Error("chunk failed",
				logx.Int("chunk", res.Chunks),
				logx.Int64("first_uid", chunk[0]),
				logx.Int("size", len(chunk)),
				logx.Int("retries", retries),
				logx.Err(err),
			)
			return res, err
		}

		res.Complete += min(d.cfg.ChunkSize, res.Total-res.Complete)
		d.reporter.Report(res.Complete, res.Total)
	}
	return res, nil
}

// sendChunk submits one chunk until it succeeds or fails fatally. Each
// attempt is rebuilt from scratch so timestamp, nonce and signature are
// fresh. It returns the number of rate-limited resubmissions.
func (d *Dispatcher) sendChunk(ctx context.Context, idx int, chunk []int64, creds vkapi.Credentials, message string) (int, error) {
	retries := 0
	for {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return retries, err
			}
		}

		params := d.builder.Build(chunk, creds, message)
		resp, err := d.sender.Send(ctx, params)
		if err != nil {
			return retries, err
		}
		if resp == nil {
			return retries, &vkapi.TransportError{Op: "decode", Err: errors.New("no response")}
		}

		apiErr := resp.Err()
		if apiErr == nil {
			return retries, nil
		}
		if !vkapi.IsRateLimited(apiErr) {
			return retries, apiErr
		}

		retries++
		d.log.Debug("chunk rate limited; retry scheduled",
			logx.Int("chunk", idx),
			logx.Int("attempt", retries+1),
			logx.Duration("delay", d.cfg.RetryDelay),
		)
		if err := d.sleep(ctx, d.cfg.RetryDelay); err != nil {
			return retries, err
		}
	}
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	tmr := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		tmr.Stop()
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
