package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fetchBodyLimit caps the JWKS response size. A provider document is a few
// kilobytes; anything near the limit is misconfiguration.
const fetchBodyLimit = 1 << 20

// NewHTTPFetcher returns a FetchFunc that retrieves the key set from the
// provider's JWKS endpoint. A nil client gets a default with a 10s timeout.
func NewHTTPFetcher(client *http.Client, url string) FetchFunc {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context) (*KeySet, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build jwks request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch jwks from %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch jwks from %s: status %d", url, resp.StatusCode)
		}

		var set KeySet
		if err := json.NewDecoder(io.LimitReader(resp.Body, fetchBodyLimit)).Decode(&set); err != nil {
			return nil, fmt.Errorf("decode jwks from %s: %w", url, err)
		}
		return &set, nil
	}
}
