package vkapi

import (
	"encoding/json"
	"net/url"
)

// Request parameter names.
const (
	ParamMethod    = "method"
	ParamAPIID     = "api_id"
	ParamVersion   = "v"
	ParamFormat    = "format"
	ParamTimestamp = "timestamp"
	ParamRandom    = "random"
	ParamUIDs      = "uids"
	ParamMessage   = "message"
	ParamSig       = "sig"
)

// Credentials identify one application against the API.
type Credentials struct {
	APIID     int64
	APISecret string
}

// Params is a flat set of request parameters.
type Params map[string]string

// Encode renders params as a URL query (keys sorted, values escaped).
func (p Params) Encode() string {
	v := make(url.Values, len(p))
	for k, val := range p {
		v.Set(k, val)
	}
	return v.Encode()
}

// Clone returns a copy of p.
func (p Params) Clone() Params {
	cp := make(Params, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}

// ErrorPayload is the body of an {"error": {...}} response.
type ErrorPayload struct {
	Code int    `json:"error_code"`
	Msg  string `json:"error_msg"`
}

// Response is a parsed API reply. Error is nil for the success variant, in
// which case Raw holds the whole body as received.
type Response struct {
	Raw   json.RawMessage
	Error *ErrorPayload
}

// Err returns the error variant as an *APIError, or nil on success.
func (r *Response) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return &APIError{Code: r.Error.Code, Msg: r.Error.Msg}
}
