// Package downloader implements HTTP downloads with a bound on the number of parallel transfers.
//
// It is used by the hub package; callers normally don't need it directly.
package downloader

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ProgressCallback is called as bytes are written. totalBytes is -1 if the server didn't report a size.
type ProgressCallback func(downloadedBytes, totalBytes int64)

// DefaultMaxParallel is used when MaxParallel is not set or is set to a value <= 0.
const DefaultMaxParallel = 4

// UserAgent sent with every request.
var UserAgent = "yrlkit/1.0"

// Manager handles downloads. Create it with New and configure it with the builder methods.
type Manager struct {
	client    *http.Client
	authToken string
	semaphore chan struct{}
}

// New creates a Manager using http.DefaultClient and DefaultMaxParallel.
func New() *Manager {
	return &Manager{
		client:    http.DefaultClient,
		semaphore: make(chan struct{}, DefaultMaxParallel),
	}
}

// MaxParallel sets the maximum number of simultaneous downloads. Values <= 0 select DefaultMaxParallel.
// It should be called before any download starts.
func (m *Manager) MaxParallel(n int) *Manager {
	if n <= 0 {
		n = DefaultMaxParallel
	}
	m.semaphore = make(chan struct{}, n)
	return m
}

// WithAuthToken sets the bearer token sent with every request. Empty means no authentication.
func (m *Manager) WithAuthToken(token string) *Manager {
	m.authToken = token
	return m
}

// WithClient sets the http.Client used for the requests.
func (m *Manager) WithClient(client *http.Client) *Manager {
	m.client = client
	return m
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	<-m.semaphore
}

func (m *Manager) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "creating request for %q", url)
	}
	req.Header.Set("User-Agent", UserAgent)
	if m.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.authToken)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "requesting %q", url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "request to " + e.URL + " failed: " + e.Status
}

// Download url to filePath. The file is created (or truncated) only after the server answered successfully.
func (m *Manager) Download(ctx context.Context, url, filePath string, progress ProgressCallback) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	klog.V(1).Infof("downloading %s", url)
	resp, err := m.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating %q", filePath)
	}
	var w io.Writer = f
	if progress != nil {
		w = &progressWriter{w: f, total: resp.ContentLength, fn: progress}
	}
	if _, err = io.Copy(w, resp.Body); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing %q", filePath)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "closing %q", filePath)
	}
	return nil
}

// FetchJSON issues a GET to url and decodes the JSON body into v.
func (m *Manager) FetchJSON(ctx context.Context, url string, v any) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	resp, err := m.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "decoding JSON from %q", url)
	}
	return nil
}

type progressWriter struct {
	w          io.Writer
	downloaded int64
	total      int64
	fn         ProgressCallback
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.downloaded += int64(n)
	p.fn(p.downloaded, p.total)
	return n, err
}
