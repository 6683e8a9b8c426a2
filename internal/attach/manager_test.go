// ABOUTME: Tests for the attachment staging manager.
// ABOUTME: Covers the state machine, size ceiling, submission gate, and removal.

package attach

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/api"
)

// fakeUploader is a controllable Uploader for manager tests.
type fakeUploader struct {
	mu       sync.Mutex
	release  chan struct{} // uploads block until closed (nil = no blocking)
	result   *api.UploadResult
	err      error
	uploads  int
	deletes  []string
	cancelled bool
}

func (f *fakeUploader) Upload(ctx context.Context, name, mimeType string, size int64, r io.Reader, progress func(float64)) (*api.UploadResult, error) {
	f.mu.Lock()
	f.uploads++
	release := f.release
	f.mu.Unlock()

	if progress != nil {
		progress(0.5)
	}

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			f.mu.Lock()
			f.cancelled = true
			f.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
		return nil, ctx.Err()
	}

	if progress != nil {
		progress(1)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeUploader) Delete(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, fileID)
	return nil
}

func (f *fakeUploader) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func (f *fakeUploader) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

// waitForState polls until the named attachment reaches the wanted state.
func waitForState(t *testing.T, m *Manager, name string, want State) Attachment {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, att := range m.All() {
			if att.Name == name && att.State == want {
				return att
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("attachment %s never reached state %s", name, want)
	return Attachment{}
}

func TestSelect_OversizeRejectedWithoutUpload(t *testing.T) {
	up := &fakeUploader{}
	m := NewManager(up, 10<<20, nil, nil)

	id := m.Select(context.Background(), "huge.bin", "application/octet-stream", 30<<20, strings.NewReader(""))

	atts := m.All()
	require.Len(t, atts, 1)
	assert.Equal(t, id, atts[0].ID)
	assert.Equal(t, StateError, atts[0].State)
	assert.Contains(t, atts[0].Err, "size limit")
	assert.Equal(t, 0, up.uploadCount(), "no upload call for oversize file")

	// Errors never block submission
	assert.True(t, m.SubmissionAllowed())
}

func TestSelect_SuccessfulUploadAdoptsServerID(t *testing.T) {
	up := &fakeUploader{result: &api.UploadResult{
		FileID:        "srv-file-1",
		Filename:      "notes.txt",
		TokenCount:    42,
		ExtractedText: "extracted body",
	}}
	m := NewManager(up, 10<<20, nil, nil)

	placeholderID := m.Select(context.Background(), "notes.txt", "text/plain", 100, strings.NewReader("hello"))

	att := waitForState(t, m, "notes.txt", StateProcessed)
	assert.Equal(t, "srv-file-1", att.ID)
	assert.NotEqual(t, placeholderID, att.ID)
	assert.Equal(t, 42, att.TokenCount)
	assert.Equal(t, "extracted body", att.ExtractedText)
	assert.Equal(t, 1.0, att.Progress)

	processed := m.Processed()
	require.Len(t, processed, 1)
	assert.Equal(t, "srv-file-1", processed[0].ID)
}

func TestSelect_UploadFailureIsTerminal(t *testing.T) {
	up := &fakeUploader{err: errors.New("extraction backend unavailable")}
	m := NewManager(up, 10<<20, nil, nil)

	m.Select(context.Background(), "bad.pdf", "application/pdf", 100, strings.NewReader("x"))

	att := waitForState(t, m, "bad.pdf", StateError)
	assert.Contains(t, att.Err, "extraction backend unavailable")
	assert.Empty(t, m.Processed())
	assert.True(t, m.SubmissionAllowed(), "terminal errors do not gate submission")
}

func TestSubmissionAllowed_FalseWhileUploading(t *testing.T) {
	release := make(chan struct{})
	up := &fakeUploader{release: release, result: &api.UploadResult{FileID: "f1", TokenCount: 1}}
	m := NewManager(up, 10<<20, nil, nil)

	m.Select(context.Background(), "slow.txt", "text/plain", 10, strings.NewReader("x"))
	waitForState(t, m, "slow.txt", StateUploading)
	assert.False(t, m.SubmissionAllowed())

	close(release)
	waitForState(t, m, "slow.txt", StateProcessed)
	assert.True(t, m.SubmissionAllowed())
}

func TestRemove_AlwaysIssuesCleanup(t *testing.T) {
	up := &fakeUploader{result: &api.UploadResult{FileID: "f-9", TokenCount: 3}}
	m := NewManager(up, 10<<20, nil, nil)

	m.Select(context.Background(), "doc.txt", "text/plain", 10, strings.NewReader("x"))
	att := waitForState(t, m, "doc.txt", StateProcessed)

	m.Remove(context.Background(), att.ID)
	assert.Empty(t, m.All())
	assert.Equal(t, []string{"f-9"}, up.deletedIDs())
}

func TestRemove_UnknownIDIsNoOp(t *testing.T) {
	up := &fakeUploader{result: &api.UploadResult{FileID: "f-1", TokenCount: 1}}
	m := NewManager(up, 10<<20, nil, nil)

	m.Select(context.Background(), "keep.txt", "text/plain", 10, strings.NewReader("x"))
	waitForState(t, m, "keep.txt", StateProcessed)

	before := m.All()
	m.Remove(context.Background(), "never-existed")
	m.Remove(context.Background(), "never-existed")

	assert.Equal(t, before, m.All(), "set unchanged by unknown-id removal")
}

func TestRemove_MidUploadCancelsTransfer(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	up := &fakeUploader{release: release, result: &api.UploadResult{FileID: "f1"}}
	m := NewManager(up, 10<<20, nil, nil)

	id := m.Select(context.Background(), "slow.txt", "text/plain", 10, strings.NewReader("x"))
	waitForState(t, m, "slow.txt", StateUploading)

	m.Remove(context.Background(), id)
	assert.Empty(t, m.All())

	// Abort is best-effort, but cleanup is unconditional.
	require.Eventually(t, func() bool {
		return len(up.deletedIDs()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, id, up.deletedIDs()[0])
	assert.True(t, m.SubmissionAllowed())
}

func TestClear_EmptiesSetWithoutCleanup(t *testing.T) {
	up := &fakeUploader{result: &api.UploadResult{FileID: "f-1", TokenCount: 1}}
	m := NewManager(up, 10<<20, nil, nil)

	m.Select(context.Background(), "a.txt", "text/plain", 10, strings.NewReader("x"))
	waitForState(t, m, "a.txt", StateProcessed)

	m.Clear()
	assert.Empty(t, m.All())
	assert.Empty(t, up.deletedIDs(), "dispatched files are consumed, not deleted")
}

func TestOnChange_ReportsProgressAndStates(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	onChange := func(att Attachment) {
		mu.Lock()
		seen = append(seen, att.State)
		mu.Unlock()
	}

	up := &fakeUploader{result: &api.UploadResult{FileID: "f-1", TokenCount: 1}}
	m := NewManager(up, 10<<20, nil, onChange)

	m.Select(context.Background(), "a.txt", "text/plain", 10, strings.NewReader("x"))
	waitForState(t, m, "a.txt", StateProcessed)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, StateUploading, seen[0])
	assert.Equal(t, StateProcessed, seen[len(seen)-1])
}
