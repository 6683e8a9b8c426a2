// ABOUTME: Tests for the conversation history client.
// ABOUTME: Covers load-by-id, pagination parameters, and not-found mapping.

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/api"
)

func TestHistoryClient_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, api.PathConversations+"/conv-7", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(api.ConversationDetail{
			ID:          "conv-7",
			Title:       "Quarterly numbers",
			Model:       "gpt-4.1",
			Temperature: 0.3,
			Messages: []api.ChatMessage{
				{Role: "system", Content: "persona"},
				{Role: "user", Content: "q"},
				{Role: "assistant", Content: "a"},
			},
			Usage: api.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	h := NewHistoryClient(srv.URL, "tok", nil)
	detail, err := h.Load(context.Background(), "conv-7")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly numbers", detail.Title)
	assert.Equal(t, "gpt-4.1", detail.Model)
	assert.Equal(t, 0.3, detail.Temperature)
	assert.Len(t, detail.Messages, 3)
	assert.Equal(t, 15, detail.Usage.TotalTokens)
}

func TestHistoryClient_LoadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	h := NewHistoryClient(srv.URL, "", nil)
	_, err := h.Load(context.Background(), "gone")
	assert.True(t, errors.Is(err, api.ErrNotFound))
}

func TestHistoryClient_List(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, api.PathConversations, r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "25", r.URL.Query().Get("per_page"))

		json.NewEncoder(w).Encode(api.ConversationPage{
			Conversations: []api.ConversationSummary{
				{ID: "c1", Title: "One"},
				{ID: "c2", Title: "Two"},
			},
			Page:    2,
			PerPage: 25,
			Total:   60,
		})
	}))
	defer srv.Close()

	h := NewHistoryClient(srv.URL, "", nil)
	page, err := h.List(context.Background(), 2, 25)
	require.NoError(t, err)
	assert.Len(t, page.Conversations, 2)
	assert.Equal(t, 60, page.Total)
}
