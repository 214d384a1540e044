// Package transport performs the HTTP exchanges providers need: a streamed
// POST whose body is handed out as raw fragments, and plain JSON GETs for
// model listing. It knows nothing about dialects; framing and decoding are
// left to the stream package.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"polychat/config"
	"polychat/stream"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a failed response is read for its message.
const maxErrorBody = 64 << 10

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Request is one streamed POST.
type Request struct {
	URL    string
	Header http.Header
	Body   []byte
}

// Options configure a Client. The zero value means no timeout and no rate
// limit.
type Options struct {
	// Timeout bounds how long a streamed POST may wait for response headers,
	// and the whole of a GetJSON exchange. Reading a stream body is bounded
	// only by the caller's context.
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	ReadSize          int
	HTTPClient        *http.Client
}

// OptionsFromConfig maps the [transport] table onto Options.
func OptionsFromConfig(cfg config.TransportConfig) Options {
	return Options{
		Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}

// Client sends provider requests. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	limiter  *rate.Limiter
	readSize int
	timeout  time.Duration
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.ResponseHeaderTimeout = opts.Timeout
		hc = &http.Client{Transport: tr}
	}
	c := &Client{http: hc, readSize: opts.ReadSize, timeout: opts.Timeout}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(opts.Burst, 1))
	}
	return c
}

// HTTPClient returns the underlying client, for SDKs that take one. Requests
// made through it bypass the rate limiter.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Default is a client without timeout or rate limit.
var Default = NewClient(Options{})

// Stream posts req and yields the response body as raw fragments. The
// request is sent when iteration starts. A failure to send, a non-2xx
// status (as *HTTPError) or a read error is yielded once as the error of
// the last pair. The body is closed when iteration ends for any reason.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.send(ctx, http.MethodPost, req.URL, req.Header, req.Body)
		if err != nil {
			yield("", err)
			return
		}
		defer resp.Body.Close()

		for fragment, err := range stream.Fragments(resp.Body, c.readSize) {
			if err != nil && ctx.Err() != nil {
				err = ctx.Err()
			}
			if !yield(fragment, err) {
				return
			}
		}
	}
}

// GetJSON fetches url and returns the body of a 2xx response.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.send(ctx, http.MethodGet, url, header, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// send performs the request and returns a response with a 2xx status. The
// caller closes the body.
func (c *Client) send(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Transport] %s %s (%d bytes)", method, url, len(body))
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		herr := &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Transport] %s %s failed: %v", method, url, herr)
		}
		return nil, herr
	}
	return resp, nil
}

// errorMessage extracts the human-readable message from a provider error
// body. OpenAI, Anthropic and Gemini nest it under error.message; Ollama and
// some gateways use a bare error string.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	root := gjson.ParseBytes(body)
	for _, path := range []string{"error.message", "message", "detail"} {
		if v := root.Get(path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	if v := root.Get("error"); v.Type == gjson.String {
		return v.String()
	}
	return strings.TrimSpace(string(body))
}
