package vkapi

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"sort"
)

// Sign computes the request signature: every param except "sig", sorted by
// key, written as key=value with no separators, followed by secret, hashed
// with MD5 and hex-encoded in lower case.
func Sign(params Params, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == ParamSig {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := md5.New()
	for _, k := range keys {
		_, _ = io.WriteString(h, k)
		_, _ = io.WriteString(h, "=")
		_, _ = io.WriteString(h, params[k])
	}
	_, _ = io.WriteString(h, secret)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether params carries a valid "sig" for secret.
func Verify(params Params, secret string) bool {
	got := params[ParamSig]
	if got == "" {
		return false
	}
	want := Sign(params, secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
