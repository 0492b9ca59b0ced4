package media

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/assistflow-backend/internal/pkg/httpx"
)

const maxImageBytes = 10 << 20

type Image struct {
	Data []byte
	MIME string
}

// Fetcher downloads images referenced by assistant replies.
type Fetcher interface {
	FetchImage(ctx context.Context, rawURL string) (Image, error)
}

type httpFetcher struct {
	http     *http.Client
	attempts int
}

func NewFetcher(timeout time.Duration) Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpFetcher{http: &http.Client{Timeout: timeout}, attempts: 3}
}

func (f *httpFetcher) FetchImage(ctx context.Context, rawURL string) (Image, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Image{}, fmt.Errorf("invalid image url %q", rawURL)
	}
	data, contentType, err := httpx.Do(ctx, f.http, f.attempts, maxImageBytes, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	})
	if err != nil {
		return Image{}, fmt.Errorf("fetch image: %w", err)
	}
	mime := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return Image{}, fmt.Errorf("fetch image: unexpected content type %q", mime)
	}
	return Image{Data: data, MIME: mime}, nil
}
