// Package apiclient is the single chokepoint for calls to the transport backend.
//
// It attaches the persisted bearer token, unwraps the backend's
// {code, message, result} envelope and turns every failure into *Error.
// A 401 from any call wipes the persisted session and forces the console to
// the login screen; callers never have to handle that themselves.
// Nothing is ever retried.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fleetdesk/console/internal/storage"
)

const (
	DefaultTimeout  = 15 * time.Second
	RequestIDHeader = "X-Request-ID"

	tracerName = "github.com/fleetdesk/console/internal/apiclient"
)

// Navigator is the side-channel used to send the operator back to the login screen.
type Navigator interface {
	// RedirectToLogin moves to the login screen unless already there, reporting whether it moved.
	RedirectToLogin() bool
}

type Options struct {
	BaseURL string
	Timeout time.Duration

	// Optional, mostly for tests. It is copied, Timeout is applied to the copy when it has none.
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Defaults to the global provider
	TracerProvider trace.TracerProvider
}

type Client struct {
	baseURL string
	http    *http.Client
	store   storage.Store
	nav     Navigator
	logger  *zap.Logger
	tracer  trace.Tracer

	mu                    sync.Mutex
	unauthorizedListeners []func()
}

func New(opts Options, store storage.Store, nav Navigator) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{}
	if opts.HTTPClient != nil {
		cp := *opts.HTTPClient
		httpClient = &cp
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = timeout
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		store:   store,
		nav:     nav,
		logger:  logger.Named("apiclient"),
		tracer:  tp.Tracer(tracerName),
	}
}

// OnUnauthorized registers fn to run after a 401 has wiped the persisted session.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.unauthorizedListeners = append(c.unauthorizedListeners, fn)
	c.mu.Unlock()
}

type requestOptions struct {
	query url.Values
}

type RequestOption func(*requestOptions)

func WithQuery(q url.Values) RequestOption {
	return func(o *requestOptions) {
		o.query = q
	}
}

type requestIDKey struct{}

// ContextWithRequestID makes outbound calls made with ctx carry id instead of a fresh one.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Request performs one call and returns the unwrapped result. For enveloped responses that is
// exactly the bytes of "result"; for anything else it is the raw body.
// Errors are always *Error.
func (c *Client) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	var ro requestOptions
	for _, opt := range opts {
		opt(&ro)
	}

	ctx, span := c.tracer.Start(ctx, method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", path),
		),
	)
	defer span.End()

	result, err := c.do(ctx, method, path, body, ro, span)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, ro requestOptions, span trace.Span) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, method, path, body, ro)
	if err != nil {
		return nil, NewError(http.StatusInternalServerError, http.StatusInternalServerError, GenericFailureMessage, err)
	}

	logger := c.logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", req.Header.Get(RequestIDHeader)),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("transport failure", zap.Error(err))
		return nil, transportError(err, c.http.Timeout)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("couldn't read response body", zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, transportError(err, c.http.Timeout)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(ctx, logger, resp.StatusCode, raw)
	}

	env, ok := parseEnvelope(raw)
	if !ok {
		return raw, nil
	}

	if env.Code == CodeSuccess {
		return env.Result, nil
	}

	message := env.Message
	if message == "" {
		message = DefaultFailureMessage
	}

	logger.Debug("business failure", zap.Int("code", env.Code), zap.String("message", message))
	span.SetAttributes(attribute.Int("backend.code", env.Code))

	return nil, &Error{
		Status:  resp.StatusCode,
		Code:    env.Code,
		Message: message,
		Result:  env.Result,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, ro requestOptions) (*http.Request, error) {
	target := c.baseURL + path
	if len(ro.query) > 0 {
		target += "?" + ro.query.Encode()
	}

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		case json.RawMessage:
			reader = bytes.NewReader(b)
		default:
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("couldn't encode request body: %w", err)
			}
			reader = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	req.Header.Set(RequestIDHeader, requestID)

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	tok, err := storage.Token(ctx, c.store)
	if err != nil {
		// Storage trouble makes the call anonymous, the backend will answer 401 if it cares
		c.logger.Warn("couldn't read persisted token", zap.Error(err))
	}
	if tok != "" {
		(&oauth2.Token{AccessToken: tok}).SetAuthHeader(req)
	}

	return req, nil
}

func (c *Client) statusError(ctx context.Context, logger *zap.Logger, status int, raw []byte) *Error {
	env, _ := parseEnvelope(raw)

	switch status {
	case http.StatusUnauthorized:
		c.handleUnauthorized(ctx, logger)
	case http.StatusForbidden:
		logger.Warn("access denied", zap.String("message", env.Message))
	}

	code := env.Code
	if code == 0 {
		code = status
	}

	message := env.Message
	if message == "" {
		message = fmt.Sprintf("Request failed with status code %d", status)
	}

	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
		Result:  env.Result,
	}
}

func (c *Client) handleUnauthorized(ctx context.Context, logger *zap.Logger) {
	// The request context may already be done, wiping must still happen
	if err := storage.ClearSession(context.WithoutCancel(ctx), c.store); err != nil {
		logger.Error("couldn't wipe session after 401", zap.Error(err))
	}

	if c.nav != nil && c.nav.RedirectToLogin() {
		logger.Info("session rejected by backend, sent to login")
	}

	c.mu.Lock()
	listeners := append([]func(){}, c.unauthorizedListeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

func transportError(err error, timeout time.Duration) *Error {
	message := "Network error"

	var urlErr *url.Error
	switch {
	case errors.As(err, &urlErr) && urlErr.Timeout():
		message = fmt.Sprintf("Request timed out after %s", timeout)
	case errors.Is(err, context.DeadlineExceeded):
		message = "Request timed out"
	case errors.Is(err, context.Canceled):
		message = "Request canceled"
	}

	return NewError(http.StatusInternalServerError, http.StatusInternalServerError, message, err)
}

// Call runs Request and decodes the result into T. An empty or null result leaves T at its zero value.
func Call[T any](ctx context.Context, c *Client, method, path string, body any, opts ...RequestOption) (T, error) {
	var out T

	raw, err := c.Request(ctx, method, path, body, opts...)
	if err != nil {
		return out, err
	}

	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return out, nil
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, NewError(http.StatusInternalServerError, http.StatusInternalServerError, "Unexpected response from server", err)
	}
	return out, nil
}
