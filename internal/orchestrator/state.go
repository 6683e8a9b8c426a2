// ABOUTME: Accessors and mutators for orchestrator-owned UI state.
// ABOUTME: Model selection, augmentation toggles, entries view, error dismissal.

package orchestrator

import (
	"github.com/2389/parley/internal/api"
	"github.com/2389/parley/internal/catalog"
	"github.com/2389/parley/internal/conversation"
)

// Phase returns the current per-turn phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// SetSelection replaces the active model selection. The whole combination
// travels together, so sub-parameters can never go stale against the base id.
func (o *Orchestrator) SetSelection(opt catalog.Option) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selection = opt
}

// Selection returns the active model selection.
func (o *Orchestrator) Selection() catalog.Option {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selection
}

// SetModelOverride sets an explicit base-model override, or clears it with
// the empty string. The override never touches sub-parameters.
func (o *Orchestrator) SetModelOverride(apiName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overrideModel = apiName
}

// SetTemperature sets the sampling temperature for subsequent turns.
func (o *Orchestrator) SetTemperature(t float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.temperature = t
}

// Temperature returns the active sampling temperature.
func (o *Orchestrator) Temperature() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.temperature
}

// SetSystemMessage sets the active system-message preset: its id travels in
// the dispatch payload and its text becomes the leading transcript turn.
func (o *Orchestrator) SetSystemMessage(id, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.systemMessageID = id
	o.transcript.SetSystem(text)
}

// SetWebSearch toggles web search. Disabling it also disables deep search,
// which cannot run without it.
func (o *Orchestrator) SetWebSearch(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.webSearch = on
	if !on {
		o.deepSearch = false
	}
}

// SetDeepSearch toggles deep search. Enabling it forces web search on.
func (o *Orchestrator) SetDeepSearch(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deepSearch = on
	if on {
		o.webSearch = true
	}
}

// Toggles returns the current augmentation toggles.
func (o *Orchestrator) Toggles() (webSearch, deepSearch bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.webSearch, o.deepSearch
}

// ConversationID returns the active conversation id, empty for a new one.
func (o *Orchestrator) ConversationID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversationID
}

// Title returns the active conversation title.
func (o *Orchestrator) Title() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversationTitle
}

// Usage returns the latest token usage totals.
func (o *Orchestrator) Usage() api.Usage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.usage
}

// Transcript returns a copy of the persisted turns.
func (o *Orchestrator) Transcript() []conversation.Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transcript.Turns()
}

// Entries renders the full conversation view: the system turn, augmentation
// artifacts, the remaining turns, the transient narration line, and any
// dismissable errors, in that order.
func (o *Orchestrator) Entries() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	turns := o.transcript.Turns()
	out := make([]Entry, 0, len(turns)+len(o.artifacts)+len(o.errEntries)+1)

	out = append(out, Entry{Kind: EntryTurn, Role: turns[0].Role, Text: turns[0].Display})
	out = append(out, o.artifacts...)
	for _, turn := range turns[1:] {
		out = append(out, Entry{Kind: EntryTurn, Role: turn.Role, Text: turn.Display})
	}
	if o.narration != nil {
		out = append(out, *o.narration)
	}
	out = append(out, o.errEntries...)
	return out
}

// Narration returns the latest narration line, empty when none is pending.
func (o *Orchestrator) Narration() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.narration == nil {
		return ""
	}
	return o.narration.Text
}

// DismissError removes one error entry by id. Unknown ids are ignored.
func (o *Orchestrator) DismissError(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, e := range o.errEntries {
		if e.ID == id {
			o.errEntries = append(o.errEntries[:i], o.errEntries[i+1:]...)
			return
		}
	}
}

// Errors returns the current dismissable error entries.
func (o *Orchestrator) Errors() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Entry(nil), o.errEntries...)
}
