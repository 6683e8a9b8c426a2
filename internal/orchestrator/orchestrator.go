// ABOUTME: Per-turn coordination core: staging gate, payload assembly, dispatch, reconcile.
// ABOUTME: Sole owner of the transcript, model selection, and toggle state.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/parley/internal/api"
	"github.com/2389/parley/internal/attach"
	"github.com/2389/parley/internal/catalog"
	"github.com/2389/parley/internal/convcache"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/stale"
)

// Sentinel errors for staging-gate rejections. Neither involves a network call.
var (
	ErrEmptyTurn       = errors.New("nothing to send: no text and no processed attachment")
	ErrUploadsInFlight = errors.New("attachments are still uploading")
)

// Phase is the per-turn state of the orchestrator.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseStagingGate Phase = "staging-gate"
	PhaseDispatching Phase = "dispatching"
	PhaseAwaiting    Phase = "awaiting-response"
	PhaseReconciling Phase = "reconciling"
	PhaseFailed      Phase = "failed"
)

// EntryKind classifies one renderable entry.
type EntryKind string

const (
	EntryTurn      EntryKind = "turn"
	EntryArtifact  EntryKind = "artifact"
	EntryNarration EntryKind = "narration"
	EntryError     EntryKind = "error"
)

// Entry is one renderable line of the conversation view: a persisted turn, a
// labeled augmentation artifact, the transient narration line, or a
// dismissable error.
type Entry struct {
	Kind        EntryKind
	Role        conversation.Role
	Label       string
	Text        string
	ID          string
	Dismissable bool
}

// NarrationChannel is what the orchestrator needs from a status channel.
type NarrationChannel interface {
	SessionID(ctx context.Context) (string, bool)
	Close()
}

// ChannelOpener opens a fresh narration channel scoped to one request.
type ChannelOpener func(onNarration func(string)) NarrationChannel

// HistoryStore is the read-only conversation collaborator.
type HistoryStore interface {
	Load(ctx context.Context, conversationID string) (*api.ConversationDetail, error)
	List(ctx context.Context, page, perPage int) (*api.ConversationPage, error)
}

// Options configures an Orchestrator.
type Options struct {
	Catalog     *catalog.Catalog
	Attachments *attach.Manager
	Dispatcher  Dispatcher
	History     HistoryStore
	Cache       *convcache.Cache // optional
	OpenChannel ChannelOpener    // optional; nil means no narration
	SessionWait time.Duration    // bounded wait for the session id handshake
	Timezone    string
	Logger      *slog.Logger

	// OnLocation is invoked with the conversation id when a dispatch creates
	// a new conversation; the caller updates the location to /c/{id}.
	OnLocation func(conversationID string)
}

// Orchestrator coordinates one turn at a time: it gates submission on
// attachment staging, assembles the outbound request, opens the narration
// channel around dispatch, and reconciles the response. All shared state is
// owned here and mutated only through its methods.
type Orchestrator struct {
	catalog     *catalog.Catalog
	attachments *attach.Manager
	dispatcher  Dispatcher
	history     HistoryStore
	cache       *convcache.Cache
	openChannel ChannelOpener
	sessionWait time.Duration
	timezone    string
	logger      *slog.Logger
	onLocation  func(string)
	retired     *stale.Set

	mu                sync.Mutex
	phase             Phase
	transcript        *conversation.Transcript
	selection         catalog.Option
	overrideModel     string
	temperature       float64
	systemMessageID   string
	webSearch         bool
	deepSearch        bool
	conversationID    string
	conversationTitle string
	usage             api.Usage
	artifacts         []Entry
	narration         *Entry
	errEntries        []Entry
	errSeq            int
	turnSeq           uint64
	currentSession    string
	channel           NarrationChannel
}

// New creates an orchestrator. Catalog, Attachments, and Dispatcher are
// required; everything else degrades gracefully when absent.
func New(opts Options) (*Orchestrator, error) {
	if opts.Catalog == nil || opts.Attachments == nil || opts.Dispatcher == nil {
		return nil, fmt.Errorf("catalog, attachments, and dispatcher are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tz := opts.Timezone
	if tz == "" {
		tz = time.Now().Location().String()
	}
	sessionWait := opts.SessionWait
	if sessionWait <= 0 {
		sessionWait = 2 * time.Second
	}

	return &Orchestrator{
		catalog:     opts.Catalog,
		attachments: opts.Attachments,
		dispatcher:  opts.Dispatcher,
		history:     opts.History,
		cache:       opts.Cache,
		openChannel: opts.OpenChannel,
		sessionWait: sessionWait,
		timezone:    tz,
		logger:      logger.With("component", "orchestrator"),
		onLocation:  opts.OnLocation,
		retired:     stale.New(10*time.Minute, 1000),
		phase:       PhaseIdle,
		transcript:  conversation.NewTranscript(""),
		selection:   opts.Catalog.Options()[0],
		temperature: 0.7,
	}, nil
}

// Submit runs one full turn: staging gate, dispatch, reconcile. It blocks
// until the turn reaches a terminal state; callers run it off the UI
// goroutine. A Submit that is superseded by a newer one returns nil and its
// late result is discarded without touching any state.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)

	o.mu.Lock()
	o.phase = PhaseStagingGate

	processed := o.attachments.Processed()
	if trimmed == "" && len(processed) == 0 {
		o.phase = PhaseIdle
		o.mu.Unlock()
		return ErrEmptyTurn
	}
	if !o.attachments.SubmissionAllowed() {
		o.phase = PhaseIdle
		o.mu.Unlock()
		return ErrUploadsInFlight
	}

	// This turn supersedes any in-flight one.
	o.turnSeq++
	seq := o.turnSeq
	if o.currentSession != "" {
		o.retired.Retire(o.currentSession)
		o.currentSession = ""
	}
	prevChannel := o.channel
	o.channel = nil
	o.narration = nil

	raw, display := composeContents(trimmed, processed)
	o.transcript.Append(conversation.RoleUser, display, raw)

	req := o.assembleRequestLocked(processed)
	o.phase = PhaseDispatching
	opener := o.openChannel
	o.mu.Unlock()

	if prevChannel != nil {
		prevChannel.Close()
	}

	// The status session opens immediately before dispatch and is scoped to
	// this one request. Past the bounded wait the turn proceeds without live
	// narration.
	var ch NarrationChannel
	var sessionID string
	if opener != nil {
		ch = opener(func(msg string) { o.handleNarration(seq, msg) })
		waitCtx, cancel := context.WithTimeout(ctx, o.sessionWait)
		var got bool
		sessionID, got = ch.SessionID(waitCtx)
		cancel()
		if !got {
			o.logger.Debug("proceeding without narration session")
		}
	}

	o.mu.Lock()
	if o.turnSeq != seq {
		o.mu.Unlock()
		if ch != nil {
			ch.Close()
		}
		return nil
	}
	o.channel = ch
	o.currentSession = sessionID
	o.phase = PhaseAwaiting
	o.mu.Unlock()

	resp, err := o.dispatcher.Dispatch(ctx, req, sessionID)

	o.mu.Lock()
	if o.turnSeq != seq || (sessionID != "" && o.retired.Retired(sessionID)) {
		// Superseded while in flight: discard silently.
		o.mu.Unlock()
		if ch != nil {
			ch.Close()
		}
		return nil
	}

	// A terminal result always supersedes pending narration.
	o.narration = nil
	o.currentSession = ""
	o.channel = nil

	if err != nil {
		o.phase = PhaseFailed
		o.errSeq++
		o.errEntries = append(o.errEntries, Entry{
			Kind:        EntryError,
			ID:          fmt.Sprintf("err-%d", o.errSeq),
			Text:        dispatchErrorText(err),
			Dismissable: true,
		})
		// User turn and attachments stay for an explicit resend.
		o.phase = PhaseIdle
		o.mu.Unlock()
		if ch != nil {
			ch.Close()
		}
		o.logger.Warn("dispatch failed", "error", err)
		return err
	}

	o.phase = PhaseReconciling
	o.artifacts = buildArtifacts(resp.GeneratedSearchQueries, resp.VectorSearchResults, resp.WebSearchResults)
	o.transcript.Append(conversation.RoleAssistant, resp.Response, resp.Response)

	created := resp.ConversationID != "" && resp.ConversationID != o.conversationID
	if resp.ConversationID != "" {
		o.conversationID = resp.ConversationID
	}
	if resp.ConversationTitle != "" {
		o.conversationTitle = resp.ConversationTitle
	}
	o.usage = resp.Usage
	o.attachments.Clear()
	o.phase = PhaseIdle

	convID := o.conversationID
	convTitle := o.conversationTitle
	onLocation := o.onLocation
	o.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if created && onLocation != nil {
		onLocation(convID)
	}
	o.cacheUpsert(ctx, convID, convTitle)

	return nil
}

// assembleRequestLocked builds the dispatch payload. Must be called with mu
// held. The model override wins for the base model id only; reasoning-effort
// and extended-thinking parameters always come from the active selection.
func (o *Orchestrator) assembleRequestLocked(processed []attach.Attachment) *api.DispatchRequest {
	model := o.selection.APIName
	if o.overrideModel != "" {
		model = o.overrideModel
	}

	fileIDs := make([]string, 0, len(processed))
	for _, att := range processed {
		fileIDs = append(fileIDs, att.ID)
	}

	return &api.DispatchRequest{
		Messages:         o.transcript.Messages(),
		Model:            model,
		Temperature:      o.temperature,
		SystemMessageID:  o.systemMessageID,
		EnableWebSearch:  o.webSearch,
		EnableDeepSearch: o.deepSearch,
		Timezone:         o.timezone,
		FileIDs:          fileIDs,
		ConversationID:   o.conversationID,
		ReasoningEffort:  string(o.selection.ReasoningEffort),
		ExtendedThinking: o.selection.ExtendedThinking,
		ThinkingBudget:   o.selection.ThinkingBudget,
	}
}

// composeContents builds the raw outbound content and the displayed content
// for one user turn. Raw inlines extracted attachment text; display carries
// one placeholder line per attachment instead.
func composeContents(text string, processed []attach.Attachment) (raw, display string) {
	var rawB, dispB strings.Builder
	rawB.WriteString(text)
	dispB.WriteString(text)
	for _, att := range processed {
		fmt.Fprintf(&rawB, "\n\n[File: %s]\n%s", att.Name, att.ExtractedText)
		fmt.Fprintf(&dispB, "\n[Attachment: %s]", att.Name)
	}
	return rawB.String(), dispB.String()
}

// dispatchErrorText renders a dispatch failure for display. Non-2xx bodies
// are surfaced verbatim.
func dispatchErrorText(err error) string {
	var de *api.DispatchError
	if errors.As(err, &de) && de.Body != "" {
		return de.Body
	}
	return err.Error()
}

// buildArtifacts renders augmentation artifacts as labeled entries.
func buildArtifacts(queries []string, vec []api.VectorResult, web []api.WebResult) []Entry {
	var out []Entry
	if len(queries) > 0 {
		out = append(out, Entry{
			Kind:  EntryArtifact,
			Label: "Generated search queries",
			Text:  strings.Join(queries, "\n"),
		})
	}
	if len(vec) > 0 {
		var lines []string
		for _, r := range vec {
			lines = append(lines, fmt.Sprintf("%s: %s", r.Source, r.Content))
		}
		out = append(out, Entry{
			Kind:  EntryArtifact,
			Label: "Knowledge search results",
			Text:  strings.Join(lines, "\n"),
		})
	}
	if len(web) > 0 {
		var lines []string
		for _, r := range web {
			lines = append(lines, fmt.Sprintf("%s (%s)", r.Title, r.URL))
		}
		out = append(out, Entry{
			Kind:  EntryArtifact,
			Label: "Web search results",
			Text:  strings.Join(lines, "\n"),
		})
	}
	return out
}

// handleNarration records the latest narration line for the current turn.
// Narration from a superseded turn is dropped.
func (o *Orchestrator) handleNarration(seq uint64, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.turnSeq != seq {
		return
	}
	o.narration = &Entry{Kind: EntryNarration, Text: msg}
}

func (o *Orchestrator) cacheUpsert(ctx context.Context, id, title string) {
	if o.cache == nil || id == "" {
		return
	}
	err := o.cache.Upsert(ctx, api.ConversationSummary{
		ID:        id,
		Title:     title,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		o.logger.Warn("conversation cache update failed", "error", err)
	}
}

// LoadConversation replaces the whole UI state with a persisted conversation:
// transcript, model, temperature, usage, and artifacts all come from the
// stored record, with no bleed-through from the previous state.
func (o *Orchestrator) LoadConversation(ctx context.Context, conversationID string) error {
	if o.history == nil {
		return fmt.Errorf("no history collaborator configured")
	}
	detail, err := o.history.Load(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}

	o.mu.Lock()
	o.turnSeq++
	if o.currentSession != "" {
		o.retired.Retire(o.currentSession)
		o.currentSession = ""
	}
	prevChannel := o.channel
	o.channel = nil

	systemText := ""
	start := 0
	if len(detail.Messages) > 0 && detail.Messages[0].Role == string(conversation.RoleSystem) {
		systemText = detail.Messages[0].Content
		start = 1
	}
	o.transcript.Reset(systemText)
	for _, m := range detail.Messages[start:] {
		o.transcript.Append(conversation.Role(m.Role), m.Content, m.Content)
	}

	o.selection = o.catalog.Resolve(detail.Model)
	o.overrideModel = ""
	o.temperature = detail.Temperature
	o.systemMessageID = detail.SystemMessageID
	o.conversationID = detail.ID
	o.conversationTitle = detail.Title
	o.usage = detail.Usage
	o.artifacts = buildArtifacts(detail.GeneratedSearchQueries, detail.VectorSearchResults, detail.WebSearchResults)
	o.narration = nil
	o.errEntries = nil
	o.phase = PhaseIdle
	o.mu.Unlock()

	if prevChannel != nil {
		prevChannel.Close()
	}
	o.cacheUpsert(ctx, detail.ID, detail.Title)
	return nil
}

// ListConversations fetches one listing page from the gateway and refreshes
// the local cache with it.
func (o *Orchestrator) ListConversations(ctx context.Context, page, perPage int) (*api.ConversationPage, error) {
	if o.history == nil {
		return nil, fmt.Errorf("no history collaborator configured")
	}
	result, err := o.history.List(ctx, page, perPage)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		if err := o.cache.UpsertPage(ctx, result); err != nil {
			o.logger.Warn("conversation cache refresh failed", "error", err)
		}
	}
	return result, nil
}

// CachedConversations returns the locally cached listing, newest first.
// Returns nil when no cache is configured.
func (o *Orchestrator) CachedConversations(ctx context.Context, limit int) []api.ConversationSummary {
	if o.cache == nil {
		return nil
	}
	list, err := o.cache.List(ctx, limit, 0)
	if err != nil {
		o.logger.Warn("conversation cache read failed", "error", err)
		return nil
	}
	return list
}

// Close releases background resources.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	ch := o.channel
	o.channel = nil
	o.mu.Unlock()
	if ch != nil {
		ch.Close()
	}
	o.retired.Close()
}
