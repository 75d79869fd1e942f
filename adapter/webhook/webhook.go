// Package webhook POSTs read_completed events to an HTTP endpoint.
//
// Network errors and 5xx responses are retried; any 4xx is final.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pithecene-io/opcda/adapter"
	"github.com/pithecene-io/opcda/iox"
)

// Headers set on every delivery in addition to Config.Headers.
const (
	HeaderEvent   = "X-Opcda-Event"
	HeaderSession = "X-Opcda-Session"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration // per request
	Retries int
	Backoff time.Duration
}

type Adapter struct {
	url     string
	headers http.Header
	retries int
	backoff time.Duration
	client  *http.Client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter: url is required")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("webhook adapter: negative retries %d", cfg.Retries)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	headers := make(http.Header, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	headers.Set("Content-Type", "application/json")
	return &Adapter{
		url:     cfg.URL,
		headers: headers,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded %d %s", e.Code, http.StatusText(e.Code))
}

// Temporary reports whether the delivery is worth retrying.
func (e *StatusError) Temporary() bool { return e.Code >= 500 }

func (a *Adapter) Publish(ctx context.Context, event *adapter.ReadCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: encode %s: %w", event.EventType, err)
	}

	attempts, err := adapter.Retry(ctx, a.retries, a.backoff, func(ctx context.Context) error {
		err := a.post(ctx, event, body)
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("webhook: delivery to %s failed after %d attempts: %w", a.url, attempts, err)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, event *adapter.ReadCompletedEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header = a.headers.Clone()
	req.Header.Set(HeaderEvent, event.EventType)
	req.Header.Set(HeaderSession, event.SessionID)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
