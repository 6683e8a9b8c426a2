// ABOUTME: HTTP dispatch client for POST /api/chat.
// ABOUTME: Carries the status-session id in a header and surfaces non-2xx bodies verbatim.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/2389/parley/internal/api"
)

// Dispatcher sends one assembled turn to the gateway.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *api.DispatchRequest, sessionID string) (*api.DispatchResponse, error)
}

// HTTPDispatcher implements Dispatcher against the gateway's chat endpoint.
type HTTPDispatcher struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPDispatcher creates a dispatcher for the given gateway. No timeout is
// set on the client: model calls legitimately run for minutes, and the caller
// bounds the request through ctx.
func NewHTTPDispatcher(baseURL, token string, client *http.Client) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDispatcher{baseURL: baseURL, token: token, client: client}
}

// Dispatch implements Dispatcher. Non-2xx responses come back as a
// *api.DispatchError whose Body is the response body verbatim.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req *api.DispatchRequest, sessionID string) (*api.DispatchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding dispatch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+api.PathDispatch, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		httpReq.Header.Set(api.SessionHeader, sessionID)
	}
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatching turn: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &api.DispatchError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var result api.DispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing dispatch response: %w", err)
	}
	return &result, nil
}
