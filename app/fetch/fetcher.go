package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

type Status int

const (
	StatusNotModified Status = iota
	StatusUpdated
	StatusFailed
)

// Validators are the cache validators of a single board resource. They are
// passed and returned by value: the fetcher never holds validator state of
// its own, so the same fetcher can serve concurrent boards.
type Validators struct {
	ETag         string
	LastModified string
}

// Result is the outcome of a conditional fetch. Body and NewValidators are
// only meaningful when Status is StatusUpdated; Err only when StatusFailed.
type Result struct {
	Status        Status
	Body          string
	NewValidators Validators
	Err           error
}

// ProgressFunc is invoked periodically with the number of raw bytes
// received so far while the response body streams in.
type ProgressFunc func(received int64)

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

func NewFetcher(httpClient *http.Client, userAgent string) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// Run performs a conditional GET of a legacy-encoded text resource.
//
// Validators are sent as If-None-Match / If-Modified-Since when present. A
// 304 yields StatusNotModified; a 200 yields the Shift_JIS-decoded body
// plus fresh validators, falling back to the previous ones when the
// response omits the headers. Transport errors and any other status
// collapse to StatusFailed so the caller can treat the whole refresh as a
// no-op.
func (f *Fetcher) Run(ctx context.Context, url string, validators Validators, onProgress ProgressFunc) Result {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return failed(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", f.userAgent)
	if validators.ETag != "" {
		req.Header.Set("If-None-Match", validators.ETag)
	}
	if validators.LastModified != "" {
		req.Header.Set("If-Modified-Since", validators.LastModified)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return failed(fmt.Errorf("failed to fetch %s: %w", url, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return Result{Status: StatusNotModified}
	case http.StatusOK:
		// proceed below
	default:
		return failed(fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status))
	}

	raw, err := readAllWithProgress(resp.Body, onProgress)
	if err != nil {
		return failed(fmt.Errorf("failed to read response body: %w", err))
	}

	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), raw)
	if err != nil {
		return failed(fmt.Errorf("failed to decode response body: %w", err))
	}

	newValidators := Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if newValidators.ETag == "" {
		newValidators.ETag = validators.ETag
	}
	if newValidators.LastModified == "" {
		newValidators.LastModified = validators.LastModified
	}

	return Result{
		Status:        StatusUpdated,
		Body:          string(decoded),
		NewValidators: newValidators,
	}
}

func failed(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}

func readAllWithProgress(r io.Reader, onProgress ProgressFunc) ([]byte, error) {
	buf := make([]byte, 32*1024)
	var data []byte
	var total int64

	for {
		n, err := r.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			total += int64(n)
			if onProgress != nil {
				onProgress(total)
			}
		}
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
