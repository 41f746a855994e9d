// Package transport provides the HTTP middleware chain for REST calls:
// bearer attachment with one refresh-and-retry on 401, error classification
// into user-facing messages, and request correlation IDs.
//
// The middleware are http.RoundTripper wrappers. AuthAttach and ErrorNotify
// are independent and correct in either composition order; Chain composes
// them in the canonical order.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
	"github.com/sirnukesalot/taskdesk-go/metrics"
)

// maxErrorBody bounds how much of a failed response body is read for
// classification.
const maxErrorBody = 64 << 10

// Session is the slice of the session layer the transport needs. The
// credential is read fresh on every request, never cached here.
type Session interface {
	AccessToken() string
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
}

// Option configures the middleware constructors.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WithLogger sets a structured logger for the middleware.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l.With("component", "transport") }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

func newConfig(opts []Option) config {
	c := config{logger: slog.Default(), metrics: metrics.New(false)}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// Chain composes the full middleware stack over base: correlation IDs
// outermost, then error notification, then auth attachment.
func Chain(base http.RoundTripper, session Session, notifier taskdesk.Notifier, opts ...Option) http.RoundTripper {
	var rt http.RoundTripper = NewAuthAttach(base, session, opts...)
	rt = NewErrorNotify(rt, notifier, opts...)
	return NewRequestID(rt, opts...)
}

// AuthAttach attaches the current access credential as a bearer header and
// recovers expired-credential failures: on a 401 from a non-auth endpoint it
// refreshes once and re-issues the original request once. A second 401 is
// propagated. A failed refresh forces a logout and propagates the original
// response.
type AuthAttach struct {
	next    http.RoundTripper
	session Session
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAuthAttach wraps next with credential attachment and 401 recovery.
func NewAuthAttach(next http.RoundTripper, session Session, opts ...Option) *AuthAttach {
	cfg := newConfig(opts)
	if next == nil {
		next = http.DefaultTransport
	}
	return &AuthAttach{next: next, session: session, logger: cfg.logger, metrics: cfg.metrics}
}

// RoundTrip implements http.RoundTripper.
func (a *AuthAttach) RoundTrip(req *http.Request) (*http.Response, error) {
	outReq := req.Clone(req.Context())
	if tok := a.session.AccessToken(); tok != "" {
		outReq.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := a.next.RoundTrip(outReq)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// 401s from the auth endpoints themselves are the caller's problem:
	// refreshing here would loop on the refresh call's own 401.
	if taskdesk.IsAuthEndpoint(req.URL.Path) {
		return resp, nil
	}

	if refreshErr := a.session.Refresh(req.Context()); refreshErr != nil {
		a.logger.Info("refresh after 401 failed, forcing logout", "url", req.URL.Path, "err", refreshErr)
		a.metrics.RecordForcedLogout()
		_ = a.session.Logout(req.Context())
		return resp, nil
	}

	retry, retryErr := rewindRequest(req)
	if retryErr != nil {
		a.logger.Warn("cannot replay request after refresh", "url", req.URL.Path, "err", retryErr)
		return resp, nil
	}
	retry.Header.Set("Authorization", "Bearer "+a.session.AccessToken())

	drain(resp)
	a.metrics.RecordRetriedRequest()
	// Exactly one retry: whatever this returns, including another 401,
	// goes back to the caller.
	return a.next.RoundTrip(retry)
}

// rewindRequest clones req with a replayable body.
func rewindRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("taskdesk/transport: request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("taskdesk/transport: %w", err)
	}
	retry.Body = body
	return retry, nil
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
	}
}

// ErrorNotify classifies failed responses into user-facing messages and
// forwards them to the notifier. 401s and auth-endpoint failures are the
// auth layer's responsibility and are never double-notified. The original
// response or error always reaches the caller unchanged.
type ErrorNotify struct {
	next     http.RoundTripper
	notifier taskdesk.Notifier
	logger   *slog.Logger
}

// NewErrorNotify wraps next with failure notification.
func NewErrorNotify(next http.RoundTripper, notifier taskdesk.Notifier, opts ...Option) *ErrorNotify {
	cfg := newConfig(opts)
	if next == nil {
		next = http.DefaultTransport
	}
	return &ErrorNotify{next: next, notifier: notifier, logger: cfg.logger}
}

// RoundTrip implements http.RoundTripper.
func (e *ErrorNotify) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := e.next.RoundTrip(req)

	if taskdesk.IsAuthEndpoint(req.URL.Path) {
		return resp, err
	}

	if err != nil {
		// A severed context means the view went away, not that the server
		// is unreachable; nobody is looking at the screen for that toast.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			e.notify((&taskdesk.APIError{StatusCode: 0, URL: req.URL.Path}).UserMessage())
		}
		return resp, err
	}

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusUnauthorized {
		body := peekBody(resp)
		apiErr := taskdesk.ParseAPIError(resp.StatusCode, req.URL.Path, body)
		e.notify(apiErr.UserMessage())
	}
	return resp, nil
}

func (e *ErrorNotify) notify(message string) {
	if e.notifier != nil {
		e.notifier.Notify(message)
	}
}

// peekBody reads a failed response body for classification and restores it
// so the caller still sees the full response.
func peekBody(resp *http.Response) []byte {
	if resp.Body == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

// RequestID stamps every request with an X-Request-ID header, honoring a
// caller-supplied correlation ID from the context, and records request
// durations.
type RequestID struct {
	next    http.RoundTripper
	metrics *metrics.Metrics
}

// NewRequestID wraps next with correlation IDs and duration recording.
func NewRequestID(next http.RoundTripper, opts ...Option) *RequestID {
	cfg := newConfig(opts)
	if next == nil {
		next = http.DefaultTransport
	}
	return &RequestID{next: next, metrics: cfg.metrics}
}

// RoundTrip implements http.RoundTripper.
func (r *RequestID) RoundTrip(req *http.Request) (*http.Response, error) {
	outReq := req.Clone(req.Context())
	id := taskdesk.RequestIDFromContext(req.Context())
	if id == "" {
		id = uuid.NewString()
	}
	outReq.Header.Set("X-Request-ID", id)

	start := time.Now()
	resp, err := r.next.RoundTrip(outReq)
	r.metrics.ObserveRequestDuration(time.Since(start).Seconds())
	return resp, err
}
