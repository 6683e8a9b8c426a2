// ABOUTME: Read-only HTTP client for persisted conversations on the gateway.
// ABOUTME: Load by id for conversation switches, paginated listing for the sidebar.

package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/2389/parley/internal/api"
)

// HistoryClient fetches persisted conversations from the gateway.
type HistoryClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHistoryClient creates a history client for the given gateway.
func NewHistoryClient(baseURL, token string, client *http.Client) *HistoryClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HistoryClient{baseURL: baseURL, token: token, client: client}
}

func (h *HistoryClient) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return api.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// Load fetches one persisted conversation with its transcript, model,
// temperature, usage totals, and augmentation artifacts.
func (h *HistoryClient) Load(ctx context.Context, conversationID string) (*api.ConversationDetail, error) {
	var detail api.ConversationDetail
	u := fmt.Sprintf("%s%s/%s", h.baseURL, api.PathConversations, url.PathEscape(conversationID))
	if err := h.get(ctx, u, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List fetches one page of the conversation listing for the sidebar.
// page is 1-based.
func (h *HistoryClient) List(ctx context.Context, page, perPage int) (*api.ConversationPage, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))

	var result api.ConversationPage
	u := fmt.Sprintf("%s%s?%s", h.baseURL, api.PathConversations, q.Encode())
	if err := h.get(ctx, u, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
