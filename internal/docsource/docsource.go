// Package docsource fetches the business reference document that
// grounds the service analysis prompt. The document is optional
// context: any failure degrades to an empty document and the pipeline
// runs with reduced context instead of aborting.
package docsource

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const maxDocumentBytes = 1 << 20

// Fetcher retrieves one document over HTTP.
type Fetcher struct {
	url  string
	http *http.Client
}

func NewFetcher(url string) *Fetcher {
	return &Fetcher{
		url:  strings.TrimSpace(url),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// GetDocument returns the document text, or "" when no URL is
// configured or the fetch fails for any reason.
func (f *Fetcher) GetDocument(ctx context.Context) string {
	if f == nil || f.url == "" {
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		log.Printf("docsource fetch_skipped url=%s err=%q", f.url, err.Error())
		return ""
	}
	resp, err := f.http.Do(req)
	if err != nil {
		log.Printf("docsource fetch_failed url=%s err=%q", f.url, err.Error())
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("docsource fetch_failed url=%s status=%d", f.url, resp.StatusCode)
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		log.Printf("docsource read_failed url=%s err=%q", f.url, err.Error())
		return ""
	}
	if len(body) > maxDocumentBytes {
		log.Printf("docsource truncated url=%s limit_bytes=%d", f.url, maxDocumentBytes)
		body = body[:maxDocumentBytes]
	}
	return string(body)
}
