package client

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/servicehub-client/types"
	"github.com/saiset-co/servicehub-client/utils"
)

type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

const bearerPrefix = "Bearer "

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// HTTPClient owns the single fasthttp client used for every REST call.
type HTTPClient struct {
	ctx          context.Context
	cancel       context.CancelFunc
	logger       types.Logger
	metrics      types.MetricsManager
	client       *fasthttp.Client
	baseURL      string
	config       *types.APIConfig
	tokens       types.TokenSource
	breaker      *CircuitBreaker
	state        atomic.Value
	retryBackoff time.Duration
}

type Option func(*HTTPClient)

// WithDialer replaces the TCP dialer, e.g. with an in-memory listener.
func WithDialer(dial fasthttp.DialFunc) Option {
	return func(c *HTTPClient) {
		c.client.Dial = dial
	}
}

func WithRetryBackoff(backoff time.Duration) Option {
	return func(c *HTTPClient) {
		c.retryBackoff = backoff
	}
}

func WithClock(clock types.Clock) Option {
	return func(c *HTTPClient) {
		c.breaker = NewCircuitBreaker(c.config.CircuitBreaker, c.logger, clock)
	}
}

func NewHTTPClient(
	ctx context.Context,
	logger types.Logger,
	metrics types.MetricsManager,
	config *types.APIConfig,
	tokens types.TokenSource,
	opts ...Option,
) (*HTTPClient, error) {
	if config == nil || config.BaseURL == "" {
		return nil, types.Errorf(types.ErrInvalidParameter, "api base_url is required")
	}

	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 60 * time.Second
	}

	clientCtx, cancel := context.WithCancel(ctx)

	httpClient := &fasthttp.Client{
		Name:                     config.UserAgent,
		NoDefaultUserAgentHeader: config.UserAgent == "",
		ReadTimeout:              config.ReadTimeout,
		WriteTimeout:             config.WriteTimeout,
		MaxConnsPerHost:          config.MaxConnsPerHost,
		Dial: func(addr string) (net.Conn, error) {
			return fasthttp.DialTimeout(addr, connectTimeout)
		},
	}

	c := &HTTPClient{
		ctx:          clientCtx,
		cancel:       cancel,
		logger:       logger,
		metrics:      metrics,
		client:       httpClient,
		baseURL:      strings.TrimRight(config.BaseURL, "/") + "/",
		config:       config,
		tokens:       tokens,
		breaker:      NewCircuitBreaker(config.CircuitBreaker, logger, types.SystemClock),
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.state.Store(StateRunning)

	return c, nil
}

// Do performs req and decodes a 2xx body into out. Failures come back as
// *types.APIError, except a missing token which is types.ErrNotAuthenticated.
func (c *HTTPClient) Do(ctx context.Context, req *types.Request, out interface{}) error {
	if !c.IsRunning() {
		return types.ErrServiceIsNotRunning
	}

	var token string
	if req.Auth {
		token = strings.TrimPrefix(c.tokens.Token(), bearerPrefix)
		if token == "" {
			return types.ErrNotAuthenticated
		}
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return types.Errorf(types.ErrRequestInvalid, "%s: %v", req.Name, err)
	}

	retries := c.config.Retries
	timeout := c.config.ReadTimeout
	if req.Options != nil {
		if req.Options.Retry > 0 {
			retries = req.Options.Retry
		}
		if req.Options.Timeout > 0 {
			timeout = req.Options.Timeout
		}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result := make(chan callResult, 1)

	go func() {
		result <- c.executeWithRetries(callCtx, req, token, body, contentType, retries)
	}()

	var res callResult
	select {
	case res = <-result:
	case <-callCtx.Done():
		res = callResult{err: callCtx.Err()}
	case <-c.ctx.Done():
		res = callResult{err: types.Errorf(types.ErrClientRequestFailed, "client shutting down")}
	}

	c.recordMetrics(req, res.status, start)

	if res.err != nil {
		c.logger.Debug("Request failed",
			zap.String("request", req.Name),
			zap.String("path", req.Path),
			zap.Error(res.err))
		return types.NewTransportError(res.err)
	}

	if res.status < 200 || res.status >= 300 {
		apiErr := httpError(res.status, res.body)
		c.logger.Debug("Request rejected",
			zap.String("request", req.Name),
			zap.Int("status", res.status),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if out == nil || len(res.body) == 0 {
		return nil
	}

	if err := utils.UnmarshalInto(res.body, out); err != nil {
		return types.Errorf(types.ErrClientResponseInvalid, "%s: %v", req.Name, err)
	}

	if env, ok := out.(types.Enveloped); ok && !env.Succeeded() {
		return types.NewLogicalError(res.status, env.EnvelopeMessage())
	}

	return nil
}

func (c *HTTPClient) Start() error {
	return nil
}

func (c *HTTPClient) Stop() error {
	if !c.transitionClientState(StateRunning, StateStopping) {
		return types.ErrServiceIsNotRunning
	}

	c.cancel()
	c.client.CloseIdleConnections()
	c.setClientState(StateStopped)

	c.logger.Debug("HTTP client closed")

	return nil
}

func (c *HTTPClient) IsRunning() bool {
	return c.getClientState() == StateRunning
}

func (c *HTTPClient) BreakerState() CircuitBreakerState {
	return c.breaker.State()
}

type callResult struct {
	status int
	body   []byte
	err    error
}

func (c *HTTPClient) executeWithRetries(ctx context.Context, req *types.Request, token string, body []byte, contentType string, maxRetries int) callResult {
	var last callResult

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if !c.breaker.CanExecute() {
			return callResult{err: types.ErrCircuitBreakerOpen}
		}

		last = c.execute(ctx, req, token, body, contentType)

		if last.err == nil && !IsCircuitBreakerFailure(last.status, nil) {
			c.breaker.RecordSuccess()
		} else {
			c.breaker.RecordFailure()
		}

		if !IsRetryable(last.status, last.err) || attempt == maxRetries {
			return last
		}

		backoff := time.Duration(attempt+1) * c.retryBackoff

		c.logger.Debug("Retrying request",
			zap.String("request", req.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Int("status", last.status),
			zap.Error(last.err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return callResult{err: ctx.Err()}
		}
	}

	return last
}

func (c *HTTPClient) execute(ctx context.Context, req *types.Request, token string, body []byte, contentType string) callResult {
	freq := fasthttp.AcquireRequest()
	fresp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(freq)
	defer fasthttp.ReleaseResponse(fresp)

	freq.SetRequestURI(c.baseURL + strings.TrimLeft(req.Path, "/"))
	freq.Header.SetMethod(req.Method)
	for key, value := range req.Query {
		if value != "" {
			freq.URI().QueryArgs().Add(key, value)
		}
	}

	freq.Header.Set(fasthttp.HeaderAccept, "application/json")
	freq.Header.Set(fasthttp.HeaderAcceptEncoding, "br, gzip")
	freq.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		freq.Header.Set(fasthttp.HeaderAuthorization, bearerPrefix+token)
	}
	if req.Options != nil {
		for key, value := range req.Options.Headers {
			freq.Header.Set(key, value)
		}
	}

	if body != nil {
		freq.Header.SetContentType(contentType)
		freq.SetBody(body)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(freq, fresp, deadline)
	} else {
		err = c.client.Do(freq, fresp)
	}
	if err != nil {
		return callResult{err: err}
	}

	decoded, err := decodeBody(fresp)
	if err != nil {
		return callResult{status: fresp.StatusCode(), err: err}
	}

	return callResult{status: fresp.StatusCode(), body: decoded}
}

// decodeBody returns a copy of the response body, inflating br and gzip.
func decodeBody(resp *fasthttp.Response) ([]byte, error) {
	switch strings.ToLower(string(resp.Header.ContentEncoding())) {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(resp.Body())))
	case "gzip":
		return resp.BodyGunzip()
	default:
		body := make([]byte, len(resp.Body()))
		copy(body, resp.Body())
		return body, nil
	}
}

func encodeBody(req *types.Request) ([]byte, string, error) {
	if req.Form != nil {
		return encodeMultipart(req.Form)
	}

	if req.Body == nil {
		return nil, "", nil
	}

	data, err := utils.Marshal(req.Body)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func encodeMultipart(form *types.MultipartForm) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for key, value := range form.Fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}

	if form.FileField != "" && len(form.FileData) > 0 {
		part, err := writer.CreateFormFile(form.FileField, form.FileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(form.FileData); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

func (c *HTTPClient) recordMetrics(req *types.Request, status int, start time.Time) {
	labels := map[string]string{
		"request": req.Name,
		"method":  req.Method,
		"status":  statusClass(status),
	}
	c.metrics.Counter("client_requests_total", labels).Inc()
	c.metrics.Histogram("client_request_duration_seconds", durationBuckets, map[string]string{
		"request": req.Name,
	}).ObserveDuration(start)
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func (c *HTTPClient) getClientState() State {
	return c.state.Load().(State)
}

func (c *HTTPClient) setClientState(newState State) bool {
	currentState := c.getClientState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *HTTPClient) transitionClientState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
