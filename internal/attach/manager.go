// ABOUTME: Lifecycle manager for temporary per-turn attachments.
// ABOUTME: Tracks placeholder/uploading/processed/error states and gates submission.

package attach

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle state of a staged attachment.
type State string

const (
	StatePlaceholder State = "placeholder"
	StateUploading   State = "uploading"
	StateProcessed   State = "processed"
	StateError       State = "error"
)

// Attachment is a snapshot of one staged file. ID is a client-generated
// placeholder id until the upload completes, then the server file id.
type Attachment struct {
	ID            string
	Name          string
	Size          int64
	MimeType      string
	State         State
	Progress      float64
	TokenCount    int
	ExtractedText string
	Err           string
}

// Manager owns the per-turn attachment set. All state lives behind one mutex;
// uploads run in background goroutines and report back through it. Error is a
// terminal state: failed attachments are never retried, only removed.
type Manager struct {
	mu       sync.Mutex
	uploader Uploader
	maxSize  int64
	logger   *slog.Logger
	onChange func(Attachment)

	atts    map[string]*Attachment
	order   []string // ids in selection order
	cancels map[string]context.CancelFunc
}

// NewManager creates an attachment manager. maxSize is the upload size
// ceiling in bytes. onChange, if non-nil, is invoked after every state or
// progress transition with a snapshot of the changed attachment.
func NewManager(uploader Uploader, maxSize int64, logger *slog.Logger, onChange func(Attachment)) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		uploader: uploader,
		maxSize:  maxSize,
		logger:   logger.With("component", "attach"),
		onChange: onChange,
		atts:     make(map[string]*Attachment),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Select stages a file for the next turn and returns its placeholder id
// immediately. Oversize files go terminal-error without any upload attempt;
// everything else transitions placeholder -> uploading -> processed|error in
// the background.
func (m *Manager) Select(ctx context.Context, name, mimeType string, size int64, r io.Reader) string {
	id := uuid.New().String()

	att := &Attachment{
		ID:       id,
		Name:     name,
		Size:     size,
		MimeType: mimeType,
		State:    StatePlaceholder,
	}

	m.mu.Lock()
	m.atts[id] = att
	m.order = append(m.order, id)

	if size > m.maxSize {
		att.State = StateError
		att.Err = fmt.Sprintf("%s exceeds the %d MB size limit", name, m.maxSize>>20)
		snapshot := *att
		m.mu.Unlock()
		m.logger.Warn("attachment rejected", "name", name, "size", size, "limit", m.maxSize)
		m.notify(snapshot)
		return id
	}

	att.State = StateUploading
	uploadCtx, cancel := context.WithCancel(ctx)
	m.cancels[id] = cancel
	snapshot := *att
	m.mu.Unlock()
	m.notify(snapshot)

	go m.upload(uploadCtx, id, name, mimeType, size, r)
	return id
}

// upload runs the transfer and applies the terminal transition.
func (m *Manager) upload(ctx context.Context, placeholderID, name, mimeType string, size int64, r io.Reader) {
	result, err := m.uploader.Upload(ctx, name, mimeType, size, r, func(frac float64) {
		m.setProgress(placeholderID, frac)
	})

	m.mu.Lock()
	att, ok := m.atts[placeholderID]
	if !ok {
		// Removed mid-upload; nothing to record.
		m.mu.Unlock()
		return
	}
	delete(m.cancels, placeholderID)

	if err != nil {
		att.State = StateError
		att.Err = err.Error()
		snapshot := *att
		m.mu.Unlock()
		m.logger.Warn("attachment upload failed", "name", name, "error", err)
		m.notify(snapshot)
		return
	}

	// Identity switches from placeholder id to server file id.
	delete(m.atts, placeholderID)
	att.ID = result.FileID
	att.State = StateProcessed
	att.Progress = 1
	att.TokenCount = result.TokenCount
	att.ExtractedText = result.ExtractedText
	m.atts[att.ID] = att
	for i, oid := range m.order {
		if oid == placeholderID {
			m.order[i] = att.ID
		}
	}
	snapshot := *att
	m.mu.Unlock()

	m.logger.Debug("attachment processed",
		"name", name,
		"file_id", att.ID,
		"tokens", att.TokenCount)
	m.notify(snapshot)
}

func (m *Manager) setProgress(id string, frac float64) {
	m.mu.Lock()
	att, ok := m.atts[id]
	if !ok || att.State != StateUploading {
		m.mu.Unlock()
		return
	}
	att.Progress = frac
	snapshot := *att
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *Manager) notify(att Attachment) {
	if m.onChange != nil {
		m.onChange(att)
	}
}

// Remove drops an attachment in any state. In-flight uploads are best-effort
// aborted, and a server-side cleanup call is always issued regardless of the
// abort outcome. Removing an unknown id is a no-op.
func (m *Manager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	_, ok := m.atts[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if cancel, inflight := m.cancels[id]; inflight {
		cancel()
		delete(m.cancels, id)
	}
	delete(m.atts, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if err := m.uploader.Delete(ctx, id); err != nil {
		// Cleanup is best-effort; the server delete is idempotent.
		m.logger.Warn("attachment cleanup failed", "id", id, "error", err)
	}
}

// SubmissionAllowed reports whether a turn may be dispatched: false while any
// attachment is still uploading, true otherwise (errors do not block).
func (m *Manager) SubmissionAllowed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, att := range m.atts {
		if att.State == StateUploading {
			return false
		}
	}
	return true
}

// Processed returns snapshots of processed attachments in selection order.
func (m *Manager) Processed() []Attachment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attachment
	for _, id := range m.order {
		if att, ok := m.atts[id]; ok && att.State == StateProcessed {
			out = append(out, *att)
		}
	}
	return out
}

// All returns snapshots of every staged attachment in selection order.
func (m *Manager) All() []Attachment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Attachment, 0, len(m.order))
	for _, id := range m.order {
		if att, ok := m.atts[id]; ok {
			out = append(out, *att)
		}
	}
	return out
}

// Clear empties the attachment set without server cleanup. Called by the
// orchestrator only after a successful dispatch has consumed the files.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
	}
	m.atts = make(map[string]*Attachment)
	m.order = nil
}
