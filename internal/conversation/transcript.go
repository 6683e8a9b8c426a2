// ABOUTME: Turn and Transcript types for the active conversation.
// ABOUTME: Enforces the single-leading-system-turn invariant.

package conversation

import "github.com/2389/parley/internal/api"

// Role of a transcript turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one transcript entry. Display is what the UI shows; Raw is what is
// sent to the backend (raw includes inlined attachment text, display carries
// placeholder lines instead).
type Turn struct {
	Role    Role
	Display string
	Raw     string
	Ordinal int
}

// Transcript is the ordered turn list for the active conversation. Exactly
// one system turn exists and it is always first. The transcript is owned by
// a single orchestrator and is not safe for concurrent use on its own.
type Transcript struct {
	turns []Turn
}

// NewTranscript creates a transcript seeded with its system turn.
func NewTranscript(systemText string) *Transcript {
	t := &Transcript{}
	t.Reset(systemText)
	return t
}

// Reset replaces the transcript wholesale, keeping only a fresh system turn.
func (t *Transcript) Reset(systemText string) {
	t.turns = []Turn{{Role: RoleSystem, Display: systemText, Raw: systemText, Ordinal: 0}}
}

// SetSystem replaces the text of the leading system turn.
func (t *Transcript) SetSystem(systemText string) {
	t.turns[0].Display = systemText
	t.turns[0].Raw = systemText
}

// Append adds a turn at the end and returns it with its ordinal assigned.
func (t *Transcript) Append(role Role, display, raw string) Turn {
	turn := Turn{Role: role, Display: display, Raw: raw, Ordinal: len(t.turns)}
	t.turns = append(t.turns, turn)
	return turn
}

// RemoveLast drops the trailing turn. The system turn is never removed.
func (t *Transcript) RemoveLast() {
	if len(t.turns) > 1 {
		t.turns = t.turns[:len(t.turns)-1]
	}
}

// Turns returns a copy of all turns in order.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns including the system turn.
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Messages renders the transcript as a dispatch payload, raw content
// included, in order.
func (t *Transcript) Messages() []api.ChatMessage {
	out := make([]api.ChatMessage, 0, len(t.turns))
	for _, turn := range t.turns {
		out = append(out, api.ChatMessage{Role: string(turn.Role), Content: turn.Raw})
	}
	return out
}
