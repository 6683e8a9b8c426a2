// ABOUTME: Tests for the HTTP uploader against an httptest gateway.
// ABOUTME: Verifies multipart framing, progress reporting, auth, and delete semantics.

package attach

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/parley/internal/api"
)

func TestHTTPUploader_Upload(t *testing.T) {
	var gotAuth, gotFilename, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, api.PathUpload, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		gotBody = string(data)

		json.NewEncoder(w).Encode(api.UploadResult{
			FileID:        "file-abc",
			Filename:      header.Filename,
			Size:          int64(len(data)),
			TokenCount:    7,
			ExtractedText: "the extracted text",
		})
	}))
	defer srv.Close()

	up := NewHTTPUploader(srv.URL, "tok-1", 0)

	var mu sync.Mutex
	var fractions []float64
	content := "attachment content"
	result, err := up.Upload(context.Background(), "report.txt", "text/plain", int64(len(content)),
		strings.NewReader(content), func(f float64) {
			mu.Lock()
			fractions = append(fractions, f)
			mu.Unlock()
		})
	require.NoError(t, err)

	assert.Equal(t, "file-abc", result.FileID)
	assert.Equal(t, 7, result.TokenCount)
	assert.Equal(t, "the extracted text", result.ExtractedText)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "report.txt", gotFilename)
	assert.Equal(t, content, gotBody)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, fractions)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
}

func TestHTTPUploader_UploadErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "file type not supported for extraction", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	up := NewHTTPUploader(srv.URL, "", 0)
	_, err := up.Upload(context.Background(), "a.xyz", "application/x-unknown", 1, strings.NewReader("x"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file type not supported")
}

func TestHTTPUploader_Delete(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(api.RemoveResult{Success: true})
	}))
	defer srv.Close()

	up := NewHTTPUploader(srv.URL, "", 0)
	require.NoError(t, up.Delete(context.Background(), "file-123"))
	assert.Equal(t, api.PathUpload+"/file-123", gotPath)
}

func TestHTTPUploader_DeleteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	up := NewHTTPUploader(srv.URL, "", 0)
	assert.Error(t, up.Delete(context.Background(), "file-123"))
}
