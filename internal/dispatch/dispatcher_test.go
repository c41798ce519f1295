package dispatch

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"vknotify/internal/vkapi"
	logx "vknotify/pkg/logx"
)

var testCreds = vkapi.Credentials{APIID: 42, APISecret: "secret"}

// fakeSender replays scripted replies and records every request it sees.
type fakeSender struct {
	calls   []vkapi.Params
	replies func(call int, p vkapi.Params) (*vkapi.Response, error)
}

func (f *fakeSender) Send(_ context.Context, p vkapi.Params) (*vkapi.Response, error) {
	f.calls = append(f.calls, p.Clone())
	if f.replies == nil {
		return okResponse(), nil
	}
	return f.replies(len(f.calls), p)
}

func okResponse() *vkapi.Response {
	return &vkapi.Response{Raw: []byte(`{"response":"ok"}`)}
}

func errResponse(code int, msg string) *vkapi.Response {
	return &vkapi.Response{Error: &vkapi.ErrorPayload{Code: code, Msg: msg}}
}

type progress struct {
	complete []int
	total    []int
}

func (p *progress) Report(complete, total int) {
	p.complete = append(p.complete, complete)
	p.total = append(p.total, total)
}

func seq(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i + 1)
	}
	return out
}

// countingBuilder wraps the real builder with a deterministic nonce source.
func countingBuilder() *vkapi.Builder {
	var n uint32
	return &vkapi.Builder{
		Now:  time.Now,
		Rand: func() uint32 { n++; return n },
	}
}

func newTestDispatcher(s Sender, r Reporter) (*Dispatcher, *[]time.Duration) {
	d := New(Config{}, countingBuilder(), s, r, logx.Nop())
	var slept []time.Duration
	d.sleep = func(_ context.Context, delay time.Duration) error {
		slept = append(slept, delay)
		return nil
	}
	return d, &slept
}

func TestRunPartitionsRecipients(t *testing.T) {
	for _, n := range []int{0, 1, 99, 100, 101, 250, 1000} {
		s := &fakeSender{}
		p := &progress{}
		d, _ := newTestDispatcher(s, p)

		res, err := d.Run(context.Background(), testCreds, seq(n), "hello")
		if err != nil {
			t.Fatalf("n=%d: Run: %v", n, err)
		}

		wantChunks := (n + ChunkSize - 1) / ChunkSize
		if len(s.calls) != wantChunks || res.Chunks != wantChunks {
			t.Fatalf("n=%d: calls=%d chunks=%d, want %d", n, len(s.calls), res.Chunks, wantChunks)
		}

		var union []int64
		for _, c := range s.calls {
			uids := vkapi.SplitUIDs(c[vkapi.ParamUIDs])
			if len(uids) == 0 || len(uids) > ChunkSize {
				t.Fatalf("n=%d: bad chunk size %d", n, len(uids))
			}
			union = append(union, uids...)
		}
		sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })
		if len(union) != n {
			t.Fatalf("n=%d: union has %d ids", n, len(union))
		}
		for i, id := range union {
			if id != int64(i+1) {
				t.Fatalf("n=%d: union[%d]=%d, partition has gaps or duplicates", n, i, id)
			}
		}

		if len(p.complete) != wantChunks {
			t.Fatalf("n=%d: %d progress reports, want %d", n, len(p.complete), wantChunks)
		}
		prev := 0
		for _, c := range p.complete {
			if c < prev || c > n {
				t.Fatalf("n=%d: progress not monotonic/bounded: %v", n, p.complete)
			}
			prev = c
		}
		if res.Complete != n || (n > 0 && p.complete[len(p.complete)-1] != n) {
			t.Fatalf("n=%d: final complete=%d reports=%v", n, res.Complete, p.complete)
		}
	}
}

func TestRunRetriesRateLimitedChunk(t *testing.T) {
	s := &fakeSender{replies: func(call int, _ vkapi.Params) (*vkapi.Response, error) {
		if call <= 2 {
			return errResponse(vkapi.CodeTooManyRequests, "Too many requests per second"), nil
		}
		return okResponse(), nil
	}}
	p := &progress{}
	d, slept := newTestDispatcher(s, p)

	res, err := d.Run(context.Background(), testCreds, seq(10), "hello")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(s.calls))
	}
	if res.Retries != 2 || len(*slept) != 2 {
		t.Fatalf("retries=%d sleeps=%d, want 2", res.Retries, len(*slept))
	}
	for _, delay := range *slept {
		if delay < 500*time.Millisecond {
			t.Fatalf("retry delay %v below 500ms", delay)
		}
	}
	if len(p.complete) != 1 || p.complete[0] != 10 {
		t.Fatalf("expected exactly one progress report of 10, got %v", p.complete)
	}

	seenRandom := map[string]bool{}
	seenSig := map[string]bool{}
	for _, c := range s.calls {
		if c[vkapi.ParamUIDs] != s.calls[0][vkapi.ParamUIDs] {
			t.Fatalf("retry changed the chunk: %s vs %s", c[vkapi.ParamUIDs], s.calls[0][vkapi.ParamUIDs])
		}
		if !vkapi.Verify(c, testCreds.APISecret) {
			t.Fatalf("attempt carries an invalid signature: %v", c)
		}
		seenRandom[c[vkapi.ParamRandom]] = true
		seenSig[c[vkapi.ParamSig]] = true
	}
	if len(seenRandom) != 3 || len(seenSig) != 3 {
		t.Fatalf("attempts were not regenerated: random=%v sig=%v", seenRandom, seenSig)
	}
}

func TestRunAbortsOnAPIError(t *testing.T) {
	s := &fakeSender{replies: func(call int, _ vkapi.Params) (*vkapi.Response, error) {
		if call == 2 {
			return errResponse(99, "blocked"), nil
		}
		return okResponse(), nil
	}}
	p := &progress{}
	d, slept := newTestDispatcher(s, p)

	res, err := d.Run(context.Background(), testCreds, seq(350), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if err.Error() != "blocked" {
		t.Fatalf("error message = %q, want %q", err.Error(), "blocked")
	}
	var apiErr *vkapi.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 99 {
		t.Fatalf("expected *vkapi.APIError code 99, got %T %v", err, err)
	}
	if len(s.calls) != 2 {
		t.Fatalf("expected dispatch to stop after the failing chunk, got %d calls", len(s.calls))
	}
	if len(*slept) != 0 {
		t.Fatalf("fatal error must not be retried")
	}
	if res.Complete != 100 || res.Chunks != 2 || len(p.complete) != 1 {
		t.Fatalf("unexpected partial result %+v reports=%v", res, p.complete)
	}
}

func TestRunAbortsOnTransportError(t *testing.T) {
	boom := &vkapi.TransportError{Op: "request", Err: errors.New("connection refused")}
	s := &fakeSender{replies: func(int, vkapi.Params) (*vkapi.Response, error) {
		return nil, boom
	}}
	d, slept := newTestDispatcher(s, nil)

	res, err := d.Run(context.Background(), testCreds, seq(150), "hello")
	var te *vkapi.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *vkapi.TransportError, got %v", err)
	}
	if len(s.calls) != 1 || len(*slept) != 0 {
		t.Fatalf("transport errors are fatal: calls=%d sleeps=%d", len(s.calls), len(*slept))
	}
	if res.Complete != 0 {
		t.Fatalf("Complete = %d", res.Complete)
	}
}

func TestRunNilResponseIsTransportError(t *testing.T) {
	s := &fakeSender{replies: func(int, vkapi.Params) (*vkapi.Response, error) { return nil, nil }}
	d, _ := newTestDispatcher(s, nil)

	_, err := d.Run(context.Background(), testCreds, seq(1), "m")
	var te *vkapi.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *vkapi.TransportError, got %v", err)
	}
}

func TestRunCanceledWhileWaitingToRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &fakeSender{replies: func(int, vkapi.Params) (*vkapi.Response, error) {
		cancel()
		return errResponse(vkapi.CodeTooManyRequests, "slow down"), nil
	}}
	d := New(Config{}, nil, s, nil, logx.Nop())

	start := time.Now()
	_, err := d.Run(ctx, testCreds, seq(5), "m")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Fatalf("cancel did not interrupt the retry pause")
	}
	if len(s.calls) != 1 {
		t.Fatalf("expected one attempt, got %d", len(s.calls))
	}
}

func TestRunWithoutSender(t *testing.T) {
	d := New(Config{}, nil, nil, nil, logx.Nop())
	if _, err := d.Run(context.Background(), testCreds, seq(1), "m"); err == nil {
		t.Fatalf("expected error without sender")
	}
}

func TestConfigDefaults(t *testing.T) {
	cases := []struct {
		in   Config
		want Config
	}{
		{Config{}, Config{ChunkSize: 100, RetryDelay: 500 * time.Millisecond}},
		{Config{ChunkSize: 500, RetryDelay: time.Millisecond, RatePerSec: -2}, Config{ChunkSize: 100, RetryDelay: 500 * time.Millisecond}},
		{Config{ChunkSize: 10, RetryDelay: 2 * time.Second, RatePerSec: 3}, Config{ChunkSize: 10, RetryDelay: 2 * time.Second, RatePerSec: 3}},
	}
	for _, c := range cases {
		if got := New(c.in, nil, &fakeSender{}, nil, logx.Nop()).Config(); got != c.want {
			t.Fatalf("withDefaults(%+v) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestRunPacedByLimiter(t *testing.T) {
	s := &fakeSender{}
	d := New(Config{ChunkSize: 1, RatePerSec: 20}, nil, s, nil, logx.Nop())
	if d.limiter == nil {
		t.Fatalf("expected limiter")
	}

	start := time.Now()
	if _, err := d.Run(context.Background(), testCreds, seq(3), "m"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// burst 1 at 20/s: three sends need at least two 50ms gaps
	if took := time.Since(start); took < 90*time.Millisecond {
		t.Fatalf("limiter did not pace requests (took %v)", took)
	}
	if len(s.calls) != 3 {
		t.Fatalf("calls = %d", len(s.calls))
	}
}

func TestRunLogsChunksOnlyAtDebug(t *testing.T) {
	for _, level := range []string{"info", "debug"} {
		var buf bytes.Buffer
		d := New(Config{}, nil, &fakeSender{}, nil, logx.NewWriter(&buf, level))
		if _, err := d.Run(context.Background(), testCreds, seq(150), "m"); err != nil {
			t.Fatalf("Run: %v", err)
		}
		got := strings.Count(buf.String(), "sending chunk")
		want := 0
		if level == "debug" {
			want = 2
		}
		if got != want {
			t.Fatalf("level %s: %d chunk lines, want %d", level, got, want)
		}
	}
}
