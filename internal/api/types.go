// ABOUTME: Wire types for the gateway HTTP contracts: upload, dispatch, status, history.
// ABOUTME: Pure data package; all transport lives in the packages that use these types.

package api

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// SessionHeader carries the status-session identifier on dispatch and
// health-check requests.
const SessionHeader = "X-Status-Session"

// Endpoint paths on the gateway.
const (
	PathUpload        = "/api/files"
	PathDispatch      = "/api/chat"
	PathStatusStream  = "/api/status/stream"
	PathStatusHealth  = "/api/status/health"
	PathConversations = "/api/conversations"
)

// UploadResult is the JSON response from POST /api/files.
// Extraction happens server-side before the response is returned, so a
// successful upload always carries the extracted text and its token count.
type UploadResult struct {
	FileID        string `json:"file_id"`
	Filename      string `json:"filename"`
	Size          int64  `json:"size"`
	MimeType      string `json:"mime_type"`
	TokenCount    int    `json:"token_count"`
	ExtractedText string `json:"extracted_text"`
}

// RemoveResult is the JSON response from DELETE /api/files/{id}.
// The delete is idempotent server-side.
type RemoveResult struct {
	Success bool `json:"success"`
}

// ChatMessage is one transcript entry in a dispatch payload.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DispatchRequest is the JSON request body for POST /api/chat.
type DispatchRequest struct {
	Messages         []ChatMessage `json:"messages"`
	Model            string        `json:"model"`
	Temperature      float64       `json:"temperature"`
	SystemMessageID  string        `json:"system_message_id,omitempty"`
	EnableWebSearch  bool          `json:"enable_web_search"`
	EnableDeepSearch bool          `json:"enable_deep_search"`
	Timezone         string        `json:"timezone,omitempty"`
	FileIDs          []string      `json:"file_ids,omitempty"`
	ConversationID   string        `json:"conversation_id,omitempty"`
	ReasoningEffort  string        `json:"reasoning_effort,omitempty"`
	ExtendedThinking bool          `json:"extended_thinking,omitempty"`
	ThinkingBudget   int           `json:"thinking_budget,omitempty"`
}

// Usage reports token consumption for one exchange.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// VectorResult is one semantic-search hit returned as an augmentation artifact.
type VectorResult struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// WebResult is one web-search hit returned as an augmentation artifact.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// DispatchResponse is the JSON response from POST /api/chat.
type DispatchResponse struct {
	Response               string         `json:"response"`
	ConversationID         string         `json:"conversation_id"`
	ConversationTitle      string         `json:"conversation_title,omitempty"`
	Usage                  Usage          `json:"usage"`
	VectorSearchResults    []VectorResult `json:"vector_search_results,omitempty"`
	GeneratedSearchQueries []string       `json:"generated_search_queries,omitempty"`
	WebSearchResults       []WebResult    `json:"web_search_results,omitempty"`
}

// DispatchError is returned for non-2xx dispatch responses. Body is the
// response body verbatim; it is human-readable by contract and rendered
// as-is to the user.
type DispatchError struct {
	StatusCode int
	Body       string
}

func (e *DispatchError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("dispatch failed with status %d", e.StatusCode)
}

// StatusEvent is one event on the narration channel. The first event after
// connect carries SessionID; every subsequent event carries Message.
type StatusEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// StatusEventType is the only event type currently sent on the channel.
const StatusEventType = "status"

// HealthResponse is the JSON response from GET /api/status/health.
type HealthResponse struct {
	SessionValid bool `json:"session_valid"`
}

// ConversationSummary is one row in the sidebar listing.
type ConversationSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

// ConversationPage is the JSON response from GET /api/conversations.
type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Page          int                   `json:"page"`
	PerPage       int                   `json:"per_page"`
	Total         int                   `json:"total"`
}

// ConversationDetail is the JSON response from GET /api/conversations/{id}.
type ConversationDetail struct {
	ID                     string         `json:"id"`
	Title                  string         `json:"title"`
	Model                  string         `json:"model"`
	Temperature            float64        `json:"temperature"`
	SystemMessageID        string         `json:"system_message_id,omitempty"`
	Messages               []ChatMessage  `json:"messages"`
	Usage                  Usage          `json:"usage"`
	VectorSearchResults    []VectorResult `json:"vector_search_results,omitempty"`
	GeneratedSearchQueries []string       `json:"generated_search_queries,omitempty"`
	WebSearchResults       []WebResult    `json:"web_search_results,omitempty"`
}
