// Package httptransport implements transport.Pusher and transport.Puller
// over a plain HTTP+JSON channel: a bearer token minted by a caller-
// supplied func, a generous client timeout, and explicit status-code/body
// error reporting.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/loonylabs-dev/react-native-offline-sync/transport"
)

// TokenFunc mints (or returns a cached) bearer token for the next request.
type TokenFunc func(ctx context.Context) (string, error)

// Transport is the default HTTP implementation of transport.Pusher and
// transport.Puller.
type Transport struct {
	BaseURL string
	Token   TokenFunc
	HTTP    *http.Client
}

// New builds a Transport against baseURL, minting bearer tokens via token.
func New(baseURL string, token TokenFunc) *Transport {
	return &Transport{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (t *Transport) Push(ctx context.Context, req transport.PushRequest) (transport.PushResponse, error) {
	var resp transport.PushResponse
	if err := t.doJSON(ctx, http.MethodPost, t.BaseURL+"/sync/push", req, &resp); err != nil {
		return transport.PushResponse{}, err
	}
	return resp, nil
}

func (t *Transport) Pull(ctx context.Context, req transport.PullRequest) (transport.PullResponse, error) {
	var resp transport.PullResponse
	if err := t.doJSON(ctx, http.MethodPost, t.BaseURL+"/sync/pull", req, &resp); err != nil {
		return transport.PullResponse{}, err
	}
	return resp, nil
}

func (t *Transport) doJSON(ctx context.Context, method, url string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httptransport: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("httptransport: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if t.Token != nil {
		token, err := t.Token(ctx)
		if err != nil {
			return fmt.Errorf("httptransport: get token: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("httptransport: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("httptransport: server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httptransport: decode response: %w", err)
	}
	return nil
}

var _ = transport.Pusher(&Transport{})
var _ = transport.Puller(&Transport{})
