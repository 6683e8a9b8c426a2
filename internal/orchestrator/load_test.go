// ABOUTME: Tests for conversation loading and listing through the orchestrator.
// ABOUTME: Verifies wholesale state replacement with no bleed-through.

package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/api"
	"github.com/2389/parley/internal/attach"
	"github.com/2389/parley/internal/catalog"
)

// fakeHistory satisfies HistoryStore.
type fakeHistory struct {
	detail *api.ConversationDetail
	page   *api.ConversationPage
	err    error
}

func (f *fakeHistory) Load(ctx context.Context, id string) (*api.ConversationDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.detail, nil
}

func (f *fakeHistory) List(ctx context.Context, page, perPage int) (*api.ConversationPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func newLoadHarness(t *testing.T, history *fakeHistory) *Orchestrator {
	t.Helper()
	manager := attach.NewManager(&stubUploader{}, 10<<20, nil, nil)
	orch, err := New(Options{
		Catalog:     catalog.Builtin(),
		Attachments: manager,
		Dispatcher:  &fakeDispatcher{},
		History:     history,
		Timezone:    "UTC",
	})
	require.NoError(t, err)
	t.Cleanup(orch.Close)
	return orch
}

func TestLoadConversation_RoundTrip(t *testing.T) {
	history := &fakeHistory{detail: &api.ConversationDetail{
		ID:          "conv-55",
		Title:       "Budget review",
		Model:       "o3",
		Temperature: 0.1,
		Messages: []api.ChatMessage{
			{Role: "system", Content: "stored persona"},
			{Role: "user", Content: "what changed?"},
			{Role: "assistant", Content: "two line items"},
		},
		Usage:                  api.Usage{PromptTokens: 100, CompletionTokens: 40, TotalTokens: 140},
		GeneratedSearchQueries: []string{"budget delta q3"},
	}}
	orch := newLoadHarness(t, history)

	// Dirty the UI state first; none of it may bleed through.
	orch.SetTemperature(0.95)
	orch.SetSystemMessage("sm-9", "other persona")
	require.NoError(t, orch.Submit(context.Background(), "unrelated prior turn"))

	require.NoError(t, orch.LoadConversation(context.Background(), "conv-55"))

	turns := orch.Transcript()
	require.Len(t, turns, 3)
	assert.Equal(t, "system", string(turns[0].Role))
	assert.Equal(t, "stored persona", turns[0].Raw)
	assert.Equal(t, "what changed?", turns[1].Raw)
	assert.Equal(t, "two line items", turns[2].Raw)

	assert.Equal(t, "o3", orch.Selection().APIName)
	assert.Equal(t, 0.1, orch.Temperature())
	assert.Equal(t, "conv-55", orch.ConversationID())
	assert.Equal(t, "Budget review", orch.Title())
	assert.Equal(t, 140, orch.Usage().TotalTokens)
	assert.Empty(t, orch.Narration())
	assert.Empty(t, orch.Errors())
}

func TestLoadConversation_UnknownModelStillRenders(t *testing.T) {
	history := &fakeHistory{detail: &api.ConversationDetail{
		ID:       "conv-1",
		Model:    "discontinued_model-v1",
		Messages: []api.ChatMessage{{Role: "system", Content: "p"}},
	}}
	orch := newLoadHarness(t, history)

	require.NoError(t, orch.LoadConversation(context.Background(), "conv-1"))
	assert.Equal(t, "Discontinued Model V1", orch.Selection().Display)
}

func TestLoadConversation_PropagatesError(t *testing.T) {
	orch := newLoadHarness(t, &fakeHistory{err: api.ErrNotFound})
	err := orch.LoadConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestListConversations(t *testing.T) {
	history := &fakeHistory{page: &api.ConversationPage{
		Conversations: []api.ConversationSummary{{ID: "c1", Title: "One"}},
		Page:          1,
		PerPage:       20,
		Total:         1,
	}}
	orch := newLoadHarness(t, history)

	page, err := orch.ListConversations(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Len(t, page.Conversations, 1)
}
