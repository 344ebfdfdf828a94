package stacks

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
	"time"

	"aetos-counter/go-backend/internal/platform/metrics"
	"aetos-counter/go-backend/internal/platform/ratelimiter"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxResponseBytes int64 = 1 << 20 // 1 MiB
	tracerName             = "aetos-counter/go-backend/internal/stacks"
)

var (
	ErrCallRejected = errors.New("read-only call rejected")
	ErrThrottled    = errors.New("read-only call throttled")
)

// TransportError covers network failures, timeouts, throttling and non-2xx responses.
type TransportError struct {
	Function   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("call-read %s: http status %d: %v", e.Function, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("call-read %s: %v", e.Function, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Config struct {
	BaseURL        string        `yaml:"baseURL" env:"COUNTER_API_URL"`
	Timeout        time.Duration `yaml:"timeout" env:"COUNTER_API_TIMEOUT"`
	RateLimitRPS   float64       `yaml:"rateLimitRPS" env:"COUNTER_API_RATE_LIMIT_RPS"`
	RateLimitBurst int           `yaml:"rateLimitBurst" env:"COUNTER_API_RATE_LIMIT_BURST"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultMainnetAPI,
		Timeout:        10 * time.Second,
		RateLimitRPS:   2,
		RateLimitBurst: 4,
	}
}

// ReadOnlyCall is one query against a contract function. Args are hex-serialized values.
type ReadOnlyCall struct {
	Contract     ContractRef
	FunctionName string
	Args         []string
	Sender       string
}

// Querier is the read-only query endpoint as seen by the state reader.
type Querier interface {
	CallReadOnly(ctx context.Context, call ReadOnlyCall) (string, error)
}

type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *ratelimiter.MapLimiter
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{},
		limiter: ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 0),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type callReadRequest struct {
	Sender    string   `json:"sender"`
	Arguments []string `json:"arguments"`
}

type callReadResponse struct {
	Okay   bool   `json:"okay"`
	Result string `json:"result"`
	Cause  string `json:"cause"`
}

// CallReadOnly posts to /v2/contracts/call-read and returns the hex-encoded result.
func (c *Client) CallReadOnly(ctx context.Context, call ReadOnlyCall) (string, error) {
	ctx, span := c.tracer.Start(ctx, "stacks.call_read", trace.WithAttributes(
		attribute.String("contract", call.Contract.ID()),
		attribute.String("function", call.FunctionName),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	result, err := c.callReadOnly(ctx, call)
	c.metrics.ObserveQueryDuration(call.FunctionName, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return result, nil
}

func (c *Client) callReadOnly(ctx context.Context, call ReadOnlyCall) (string, error) {
	if err := c.limiter.Wait(ctx, call.FunctionName); err != nil {
		return "", &TransportError{Function: call.FunctionName, Err: fmt.Errorf("%w: %v", ErrThrottled, err)}
	}

	args := call.Args
	if args == nil {
		args = []string{}
	}
	body, err := json.Marshal(callReadRequest{Sender: call.Sender, Arguments: args})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/v2/contracts/call-read/%s/%s/%s",
		c.baseURL,
		url.PathEscape(call.Contract.Address),
		url.PathEscape(call.Contract.Name),
		url.PathEscape(call.FunctionName),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Function: call.FunctionName, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Function: call.FunctionName, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransportError{Function: call.FunctionName, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportError{
			Function:   call.FunctionName,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(raw))),
		}
	}

	var out callReadResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &TransportError{Function: call.FunctionName, StatusCode: resp.StatusCode, Err: fmt.Errorf("parse response: %w", err)}
	}
	if !out.Okay {
		return "", fmt.Errorf("%w: %s: %s", ErrCallRejected, call.FunctionName, out.Cause)
	}
	return out.Result, nil
}
