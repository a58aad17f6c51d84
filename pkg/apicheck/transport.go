package apicheck

import (
	"bytes"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jzx17/storecheck/pkg/recorder"
	"github.com/jzx17/storecheck/pkg/types"
)

// DefaultRedactHeaders are masked when no list is configured.
var DefaultRedactHeaders = []string{"Authorization", "Cookie", "Set-Cookie", "X-Api-Key", "Proxy-Authorization"}

// DefaultMaxBodyBytes bounds recorded body snapshots.
const DefaultMaxBodyBytes = 64 << 10

const redacted = "[REDACTED]"

// Transport is an http.RoundTripper that records every exchange into a run as
// an ExternalCall. Bodies are buffered so the caller still reads them in full.
//
// The recorder is only touched under the transport's lock, so one Transport
// may serve a client used from several goroutines. Other writers to the same
// recorder must not run concurrently with it.
type Transport struct {
	Base          http.RoundTripper
	Recorder      *recorder.Recorder
	RedactHeaders []string
	MaxBodyBytes  int
	Clock         types.Clock

	mu sync.Mutex
}

// NewTransport wraps base (http.DefaultTransport if nil).
func NewTransport(base http.RoundTripper, rec *recorder.Recorder) *Transport {
	return &Transport{Base: base, Recorder: rec}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	clock := types.OrReal(t.Clock)
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	call := recorder.ExternalCall{
		RequestID:      req.Header.Get("X-Request-Id"),
		Method:         req.Method,
		URL:            req.URL.String(),
		RequestHeaders: t.flatten(req.Header),
	}
	// RoundTrip must not modify the caller's request
	req = req.Clone(req.Context())
	if call.RequestID == "" {
		call.RequestID = uuid.NewString()
		req.Header.Set("X-Request-Id", call.RequestID)
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		call.RequestBody = t.snapshot(body)
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	started := clock.Now()
	resp, err := base.RoundTrip(req)
	duration := clock.Since(started).Milliseconds()
	call.DurationMs = &duration
	call.ObservedAt = clock.Now()

	if err != nil {
		t.record(call)
		return nil, err
	}

	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	call.ResponseStatus = resp.StatusCode
	call.ResponseHeaders = t.flatten(resp.Header)
	call.ResponseBody = t.snapshot(body)
	t.record(call)

	if readErr != nil {
		return nil, readErr
	}
	return resp, nil
}

func (t *Transport) record(call recorder.ExternalCall) {
	if t.Recorder == nil {
		return
	}
	t.mu.Lock()
	t.Recorder.AddExternalCall(call)
	t.mu.Unlock()
}

func (t *Transport) flatten(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	redact := t.RedactHeaders
	if redact == nil {
		redact = DefaultRedactHeaders
	}

	out := make(map[string]string, len(h))
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if containsFold(redact, k) {
			out[k] = redacted
			continue
		}
		out[k] = strings.Join(h.Values(k), ", ")
	}
	return out
}

func (t *Transport) snapshot(body []byte) string {
	limit := t.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	if len(body) <= limit {
		return string(body)
	}
	n := limit
	// back off to a rune boundary
	for n > 0 && limit-n < utf8.UTFMax && !utf8.RuneStart(body[n]) {
		n--
	}
	return string(body[:n]) + "...[truncated]"
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
