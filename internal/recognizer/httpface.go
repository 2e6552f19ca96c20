package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider talks to a face analysis service over HTTP. The service
// accepts a JPEG body on POST /detect and responds with detected faces
// and their encodings. InsightFace-style sidecars expose exactly this
// surface.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider for the given service base URL.
func NewHTTPProvider(baseURL string) (*HTTPProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("face service URL is required")
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (p *HTTPProvider) Name() string {
	return "httpface"
}

type detectResponse struct {
	Faces []Face `json:"faces"`
}

// Detect posts the image and decodes the detected faces. All transport
// and protocol failures map to ErrRecognition.
func (p *HTTPProvider) Detect(ctx context.Context, imageData []byte) ([]Face, error) {
	url := p.baseURL + "/detect"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognition, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: service returned status %d: %s", ErrRecognition, resp.StatusCode, readErrorBody(resp.Body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read response body: %v", ErrRecognition, err)
	}

	var result detectResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: could not unmarshal response: %v", ErrRecognition, err)
	}

	return result.Faces, nil
}

// readErrorBody reads up to 512 bytes of an error response for logging.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return "<unreadable body>"
	}
	return strings.TrimSpace(string(body))
}
