package stubapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vknotify/internal/vkapi"
	logx "vknotify/pkg/logx"
)

var creds = vkapi.Credentials{APIID: 42, APISecret: "secret"}

func newClient(t *testing.T, srv *Server) *vkapi.Client {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	c, err := vkapi.NewClient(ts.URL + Path)
	require.NoError(t, err)
	return c
}

func TestAcceptsSignedRequest(t *testing.T) {
	srv := New(Config{Apps: map[int64]string{42: "secret"}}, logx.Nop())
	c := newClient(t, srv)

	p := vkapi.NewBuilder().Build([]int64{1, 2, 3}, creds, "hello")
	resp, err := c.Send(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	assert.JSONEq(t, `{"response":"1,2,3"}`, string(resp.Raw))

	assert.Equal(t, [][]int64{{1, 2, 3}}, srv.Delivered())
	assert.Equal(t, Stats{Requests: 1, Delivered: 3}, srv.Stats())
}

func TestRejectsBadRequests(t *testing.T) {
	srv := New(Config{Apps: map[int64]string{42: "secret"}}, logx.Nop())
	c := newClient(t, srv)
	b := vkapi.NewBuilder()

	tamper := b.Build([]int64{1}, creds, "hello")
	tamper[vkapi.ParamMessage] = "changed"

	tooMany := make([]int64, 101)
	for i := range tooMany {
		tooMany[i] = int64(i + 1)
	}

	wrongMethod := b.Build([]int64{1}, creds, "hello")
	wrongMethod[vkapi.ParamMethod] = "users.get"

	cases := []struct {
		name   string
		params vkapi.Params
		code   int
	}{
		{"bad signature", tamper, CodeBadSignature},
		{"unknown app", b.Build([]int64{1}, vkapi.Credentials{APIID: 7, APISecret: "x"}, "m"), CodeBadParams},
		{"too many uids", b.Build(tooMany, creds, "m"), CodeTooManyUIDs},
		{"no uids", b.Build(nil, creds, "m"), CodeBadParams},
		{"unknown method", wrongMethod, CodeUnknownMethod},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := c.Send(context.Background(), tc.params)
			require.NoError(t, err)
			var apiErr *vkapi.APIError
			require.ErrorAs(t, resp.Err(), &apiErr)
			assert.Equal(t, tc.code, apiErr.Code)
		})
	}
	assert.Empty(t, srv.Delivered())
	assert.Equal(t, len(cases), srv.Stats().Rejected)
}

func TestRateLimitsEveryNthRequest(t *testing.T) {
	srv := New(Config{Apps: map[int64]string{42: "secret"}, RateLimitEvery: 2}, logx.Nop())
	c := newClient(t, srv)
	b := vkapi.NewBuilder()

	var limited int
	for i := 0; i < 4; i++ {
		resp, err := c.Send(context.Background(), b.Build([]int64{int64(i + 1)}, creds, "m"))
		require.NoError(t, err)
		if vkapi.IsRateLimited(resp.Err()) {
			limited++
		}
	}
	assert.Equal(t, 2, limited)
	assert.Equal(t, 2, srv.Stats().RateLimited)
	assert.Equal(t, [][]int64{{1}, {3}}, srv.Delivered())
}

func TestFailUID(t *testing.T) {
	srv := New(Config{Apps: map[int64]string{42: "secret"}, FailUID: 5, FailCode: 99, FailMsg: "blocked"}, logx.Nop())
	c := newClient(t, srv)

	resp, err := c.Send(context.Background(), vkapi.NewBuilder().Build([]int64{4, 5}, creds, "m"))
	require.NoError(t, err)
	assert.EqualError(t, resp.Err(), "blocked")
}

func TestHealthz(t *testing.T) {
	srv := New(Config{}, logx.Nop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
