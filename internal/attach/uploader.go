// ABOUTME: HTTP uploader for attachment staging: multipart upload with progress,
// ABOUTME: and idempotent delete-by-id cleanup against the gateway file API.

package attach

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/2389/parley/internal/api"
)

// Uploader is the transfer side of attachment staging. The Manager owns
// states; the Uploader only moves bytes.
type Uploader interface {
	// Upload streams the file to the gateway. progress is called with a
	// fraction in [0,1] as bytes are consumed; it may be nil.
	Upload(ctx context.Context, name, mimeType string, size int64, r io.Reader, progress func(float64)) (*api.UploadResult, error)

	// Delete removes a staged file server-side. The endpoint is idempotent;
	// deleting an unknown id succeeds.
	Delete(ctx context.Context, fileID string) error
}

// HTTPUploader implements Uploader against the gateway's file endpoints.
type HTTPUploader struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPUploader creates an uploader for the given gateway. timeout bounds
// each upload request; zero means no limit.
func NewHTTPUploader(baseURL, token string, timeout time.Duration) *HTTPUploader {
	return &HTTPUploader{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// progressReader reports the fraction of size consumed as it is read.
type progressReader struct {
	r        io.Reader
	size     int64
	read     int64
	progress func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.progress != nil && p.size > 0 {
		p.read += int64(n)
		frac := float64(p.read) / float64(p.size)
		if frac > 1 {
			frac = 1
		}
		p.progress(frac)
	}
	return n, err
}

// Upload implements Uploader via multipart POST. The body is streamed through
// a pipe so large files never sit in memory whole.
func (u *HTTPUploader) Upload(ctx context.Context, name, mimeType string, size int64, r io.Reader, progress func(float64)) (*api.UploadResult, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		src := &progressReader{r: r, size: size, progress: progress}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+api.PathUpload, pr)
	if err != nil {
		return nil, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upload of %s failed with status %d: %s", name, resp.StatusCode, string(body))
	}

	var result api.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing upload response: %w", err)
	}
	return &result, nil
}

// Delete implements Uploader.
func (u *HTTPUploader) Delete(ctx context.Context, fileID string) error {
	url := fmt.Sprintf("%s%s/%s", u.baseURL, api.PathUpload, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("deleting file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete of %s failed with status %d", fileID, resp.StatusCode)
	}
	return nil
}
