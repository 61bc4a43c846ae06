package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PollHealth periodically probes the inference service health endpoint and
// reports a short state string ("ok", "http_503", "error", or whatever
// state field the service exposes). Used only for the status page; the
// capture loop has its own failure handling.
func PollHealth(ctx context.Context, baseURL string, interval time.Duration, update func(string)) {
	if baseURL == "" || update == nil {
		return
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/healthz"
	client := &http.Client{Timeout: 900 * time.Millisecond}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		update(fetchHealth(ctx, client, endpoint))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func fetchHealth(ctx context.Context, client *http.Client, endpoint string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "error"
	}
	resp, err := client.Do(req)
	if err != nil {
		return "error"
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("http_%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(body) == 0 {
		return "ok"
	}
	if state := extractState(body); state != "" {
		return state
	}
	return "ok"
}

func extractState(payload []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ""
	}
	for _, key := range []string{"state", "status", "value"} {
		if s, ok := decoded[key].(string); ok && s != "" {
			return strings.ToLower(s)
		}
	}
	return ""
}
