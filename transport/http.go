package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"machinery/message"
	"net/http"
	"strings"
	"time"
)

// HTTP sends calls to the HTTP binding of a dispatcher: a POST to /x with the
// ServiceID in the x-machinery-service header and the argument array as body.
type HTTP struct {
	url    string
	client *http.Client
	header http.Header
}

// NewHTTP returns a transport for the server at baseURL, e.g.
// "http://127.0.0.1:9797". A nil client uses a 30s-timeout default.
func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{
		url:    strings.TrimRight(baseURL, "/") + message.HTTPPath,
		client: client,
		header: make(http.Header),
	}
}

// SetHeader adds a header to every request. Handlers see it in their
// request metadata.
func (h *HTTP) SetHeader(key, value string) {
	h.header.Set(key, value)
}

func (h *HTTP) Send(ctx context.Context, serviceID string, args []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(args))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range h.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(message.ServiceHeader, serviceID)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// StatusError is a non-200 answer from the HTTP binding.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}
