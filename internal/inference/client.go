package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"detmap-go/internal/types"
)

// Client calls the remote detection inference service. The service is a
// black box: it takes an image and returns labeled boxes with confidence
// scores on the 0-1000 coordinate scale. Timeouts are enforced caller-side
// through the request context; the service is not assumed to time out on
// its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

type detectRequest struct {
	Image string `json:"image"`
	Mode  string `json:"mode"`
}

type detectResponse struct {
	Objects []struct {
		Label      string    `json:"label"`
		Confidence float64   `json:"confidence"`
		Box        []float64 `json:"box"`
	} `json:"objects"`
	Summary string `json:"summary"`
}

// Infer posts a snapshot and parses the detection set. Transport errors,
// timeouts, and malformed payloads all come back as ordinary errors; the
// caller treats every one of them as "no detections this cycle".
func (c *Client) Infer(ctx context.Context, snap types.Snapshot, mode types.Mode) (types.InferenceResult, error) {
	body, err := json.Marshal(detectRequest{
		Image: base64.StdEncoding.EncodeToString(snap.JPEG),
		Mode:  string(mode),
	})
	if err != nil {
		return types.InferenceResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/detect", bytes.NewReader(body))
	if err != nil {
		return types.InferenceResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.InferenceResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.InferenceResult{}, fmt.Errorf("inference service returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return types.InferenceResult{}, err
	}

	var decoded detectResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return types.InferenceResult{}, fmt.Errorf("malformed inference response: %w", err)
	}

	result := types.InferenceResult{Summary: decoded.Summary}
	for _, obj := range decoded.Objects {
		if len(obj.Box) != 4 {
			return types.InferenceResult{}, fmt.Errorf("malformed box with %d coordinates", len(obj.Box))
		}
		result.Objects = append(result.Objects, types.DetectedObject{
			Label:      obj.Label,
			Confidence: obj.Confidence,
			Box: types.Box{
				YMin: obj.Box[0],
				XMin: obj.Box[1],
				YMax: obj.Box[2],
				XMax: obj.Box[3],
			},
		})
	}
	return result, nil
}
