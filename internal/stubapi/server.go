// Package stubapi is a local stand-in for the notification endpoint. It
// checks requests the way the real API does and can simulate rate limiting.
package stubapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vknotify/internal/vkapi"
	logx "vknotify/pkg/logx"
)

// Path is the route the client calls.
const Path = "/api.php"

// Error codes returned by the stub. Values follow the real API.
const (
	CodeUnknownMethod = 3
	CodeBadSignature  = 4
	CodeBadParams     = 100
	CodeTooManyUIDs   = 101
)

// Config configures a Server.
type Config struct {
	// Apps maps api_id to secret.
	Apps map[int64]string
	// RateLimitEvery makes every Nth accepted request fail with code 6.
	// 0 disables.
	RateLimitEvery int
	// A request whose uids include FailUID is answered with FailCode and
	// FailMsg. 0 disables.
	FailUID  int64
	FailCode int
	FailMsg  string
}

// Stats counts handled requests.
type Stats struct {
	Requests    int
	Delivered   int
	RateLimited int
	Rejected    int
}

// Server implements the stub endpoint.
type Server struct {
	cfg Config
	log logx.Logger

	mu        sync.Mutex
	seen      int
	stats     Stats
	delivered [][]int64
}

func New(cfg Config, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, log: log.With(logx.String("comp", "stubapi"))}
}

// Handler returns the chi router serving Path.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(Path, s.handleAPI)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Delivered returns the uid chunks accepted so far, in arrival order.
func (s *Server) Delivered() [][]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]int64, len(s.delivered))
	copy(out, s.delivered)
	return out
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := make(vkapi.Params, len(q))
	for k := range q {
		params[k] = q.Get(k)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Requests++

	if code, msg := s.validate(params); code != 0 {
		s.stats.Rejected++
		s.log.Debug("request rejected", logx.Int("code", code), logx.String("reason", msg))
		respondError(w, code, msg)
		return
	}

	uids := vkapi.SplitUIDs(params[vkapi.ParamUIDs])

	s.seen++
	if n := s.cfg.RateLimitEvery; n > 0 && s.seen%n == 0 {
		s.stats.RateLimited++
		respondError(w, vkapi.CodeTooManyRequests, "Too many requests per second")
		return
	}
	if s.cfg.FailUID != 0 {
		for _, id := range uids {
			if id == s.cfg.FailUID {
				s.stats.Rejected++
				respondError(w, s.cfg.FailCode, s.cfg.FailMsg)
				return
			}
		}
	}

	s.stats.Delivered += len(uids)
	s.delivered = append(s.delivered, uids)
	s.log.Debug("notification accepted", logx.Int("uids", len(uids)))
	respondJSON(w, map[string]string{"response": params[vkapi.ParamUIDs]})
}

func (s *Server) validate(p vkapi.Params) (int, string) {
	if p[vkapi.ParamMethod] != vkapi.MethodSendNotification {
		return CodeUnknownMethod, "Unknown method passed"
	}
	apiID, err := strconv.ParseInt(p[vkapi.ParamAPIID], 10, 64)
	if err != nil {
		return CodeBadParams, "One of the parameters specified was missing or invalid: api_id"
	}
	secret, ok := s.cfg.Apps[apiID]
	if !ok {
		return CodeBadParams, "One of the parameters specified was missing or invalid: api_id"
	}
	if p[vkapi.ParamVersion] == "" {
		return CodeBadParams, "One of the parameters specified was missing or invalid: v"
	}
	for _, k := range []string{vkapi.ParamTimestamp, vkapi.ParamRandom} {
		if _, err := strconv.ParseUint(p[k], 10, 64); err != nil {
			return CodeBadParams, "One of the parameters specified was missing or invalid: " + k
		}
	}
	uids := vkapi.SplitUIDs(p[vkapi.ParamUIDs])
	if len(uids) == 0 {
		return CodeBadParams, "One of the parameters specified was missing or invalid: uids"
	}
	if len(uids) > 100 {
		return CodeTooManyUIDs, "Too many uids"
	}
	if !vkapi.Verify(p, secret) {
		return CodeBadSignature, "Incorrect signature"
	}
	return 0, ""
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, map[string]vkapi.ErrorPayload{"error": {Code: code, Msg: msg}})
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
