package plugins

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"spe/internal/domain"
	"spe/internal/panel"
)

// maxImageBytes caps link downloads.
const maxImageBytes = 32 << 20

// HTTPFetcher returns a panel.Fetcher that downloads links with client.
func HTTPFetcher(client *http.Client) panel.Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string) (domain.Blob, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return domain.Blob{}, fmt.Errorf("build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return domain.Blob{}, fmt.Errorf("fetch %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return domain.Blob{}, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
		if err != nil {
			return domain.Blob{}, fmt.Errorf("read %s: %w", url, err)
		}
		if len(data) > maxImageBytes {
			return domain.Blob{}, fmt.Errorf("fetch %s: larger than %d bytes", url, maxImageBytes)
		}
		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		return domain.Blob{Data: data, ContentType: ct}, nil
	}
}
