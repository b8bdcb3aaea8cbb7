package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPResolver resolves tokens against the device directory REST API.
//
// Each lookup is GET {baseURL}/api/v1/{resource}/{token} and expects a
// JSON body containing the entity's internal ID. A 404 maps to
// ErrTokenNotFound; transport failures and 5xx responses map to
// ErrUnavailable.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver for the directory service at baseURL.
// A zero timeout defaults to 10 seconds.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPResolver) DeviceID(ctx context.Context, token string) (string, error) {
	return r.lookup(ctx, "devices", token)
}

func (r *HTTPResolver) DeviceTypeID(ctx context.Context, token string) (string, error) {
	return r.lookup(ctx, "device-types", token)
}

func (r *HTTPResolver) AssignmentID(ctx context.Context, token string) (string, error) {
	return r.lookup(ctx, "assignments", token)
}

func (r *HTTPResolver) CustomerID(ctx context.Context, token string) (string, error) {
	return r.lookup(ctx, "customers", token)
}

func (r *HTTPResolver) AreaID(ctx context.Context, token string) (string, error) {
	return r.lookup(ctx, "areas", token)
}

func (r *HTTPResolver) AssetID(ctx context.Context, token string) (string, error) {
	return r.lookup(ctx, "assets", token)
}

func (r *HTTPResolver) lookup(ctx context.Context, resource, token string) (string, error) {
	if token == "" {
		return "", ErrTokenNotFound
	}

	endpoint := fmt.Sprintf("%s/api/v1/%s/%s", r.baseURL, resource, url.PathEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrTokenNotFound
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: %s returned %d", ErrUnavailable, resource, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("directory: unexpected status %d for %s %q", resp.StatusCode, resource, token)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding directory response: %w", err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("directory: empty id for %s %q", resource, token)
	}
	return body.ID, nil
}
