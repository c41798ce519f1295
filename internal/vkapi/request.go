package vkapi

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

const (
	MethodSendNotification = "secure.sendNotification"
	Version                = "3.0"
	FormatJSON             = "JSON"
)

// Builder produces signed secure.sendNotification parameters.
//
// Every Build call reads the clock and draws a fresh random nonce, so two
// calls with identical inputs yield different requests. The dispatcher
// relies on that when it resubmits a rate-limited chunk.
type Builder struct {
	Now  func() time.Time
	Rand func() uint32
}

func NewBuilder() *Builder {
	return &Builder{Now: time.Now, Rand: rand.Uint32}
}

// Build returns the signed parameter set for one chunk of recipients.
func (b *Builder) Build(uids []int64, creds Credentials, message string) Params {
	now := time.Now
	if b != nil && b.Now != nil {
		now = b.Now
	}
	rnd := rand.Uint32
	if b != nil && b.Rand != nil {
		rnd = b.Rand
	}

	p := Params{
		ParamMethod:    MethodSendNotification,
		ParamAPIID:     strconv.FormatInt(creds.APIID, 10),
		ParamVersion:   Version,
		ParamFormat:    FormatJSON,
		ParamTimestamp: strconv.FormatInt(now().Unix(), 10),
		ParamRandom:    strconv.FormatUint(uint64(rnd()), 10),
		ParamUIDs:      JoinUIDs(uids),
		ParamMessage:   message,
	}
	p[ParamSig] = Sign(p, creds.APISecret)
	return p
}

// JoinUIDs renders uids as a comma-separated decimal list, in order.
func JoinUIDs(uids []int64) string {
	var b strings.Builder
	for i, id := range uids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}

// SplitUIDs parses a comma-separated uid list. Malformed entries are skipped.
func SplitUIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
