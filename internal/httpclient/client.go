// Package httpclient provides a small HTTP client with bounded retry and
// exponential backoff, adapted from the teacher's provider HTTP client
// (pkg/httpclient/client.go) for use by the LLM invoker implementations in
// pkg/llm that speak raw REST rather than a vendored SDK.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Config configures a Client.
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	TLS        *TLSConfig
}

// TLSConfig configures optional custom TLS trust for self-hosted endpoints.
type TLSConfig struct {
	InsecureSkipVerify bool
	CACertificate      string // PEM contents or a path to a PEM file
}

// ConfigureTLS builds an *http.Transport honoring the given TLS options.
func ConfigureTLS(cfg *TLSConfig) (*http.Transport, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}

	if cfg.CACertificate != "" {
		pem := []byte(cfg.CACertificate)
		if data, err := os.ReadFile(cfg.CACertificate); err == nil {
			pem = data
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("httpclient: failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}

	return &http.Transport{TLSClientConfig: tlsConfig}, nil
}

// Client is a minimal retrying JSON HTTP client.
type Client struct {
	http       *http.Client
	maxRetries int
}

// New builds a Client from Config, defaulting timeout to 60s and retries to 2.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.TLS != nil {
		transport, err := ConfigureTLS(cfg.TLS)
		if err != nil {
			return nil, err
		}
		httpClient.Transport = transport
	}

	return &Client{http: httpClient, maxRetries: maxRetries}, nil
}

// DoJSON POSTs body as JSON to url with headers, retrying transient (5xx,
// 429, network) failures with jittered exponential backoff, and decodes the
// response body into out.
func (c *Client) DoJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httpclient: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 200 * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("httpclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("httpclient: status %d: %s", resp.StatusCode, string(respBody))
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("httpclient: status %d: %s", resp.StatusCode, string(respBody))
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("httpclient: decode response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("httpclient: exhausted retries: %w", lastErr)
}
