package twinclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"twin_service/internal/domain/model"
)

// APIError is returned when the service answers with a non-2xx status.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("twin service returned status %d", e.Status)
	}
	return fmt.Sprintf("twin service returned status %d: %s", e.Status, e.Detail)
}

type HTTPTwinClient struct {
	baseURL string
	client  *http.Client
}

type Option func(*HTTPTwinClient)

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPTwinClient) { c.client.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPTwinClient) { c.client = hc }
}

// NewHTTPTwinClient creates a client for the API rooted at baseURL,
// e.g. http://localhost:8000/api.
func NewHTTPTwinClient(baseURL string, opts ...Option) *HTTPTwinClient {
	c := &HTTPTwinClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *HTTPTwinClient) GetLocalities(ctx context.Context) (model.Hierarchy, error) {
	var h model.Hierarchy
	if err := c.do(ctx, http.MethodGet, "/localities", nil, &h); err != nil {
		return nil, fmt.Errorf("failed to get localities: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("failed to get localities: %w: null hierarchy", model.ErrMalformedResponse)
	}
	return h, nil
}

func (c *HTTPTwinClient) GetBaseline(ctx context.Context, locality string) (*model.Baseline, error) {
	// Decode into a map first so a missing field is an error rather than a zero.
	var raw map[string]json.RawMessage
	path := "/locality/" + url.PathEscape(locality) + "/baseline"
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get baseline for %q: %w", locality, err)
	}
	for _, field := range []string{"aqi", "water_quality", "pollution_index", "carbon_budget"} {
		if _, ok := raw[field]; !ok {
			return nil, fmt.Errorf("failed to get baseline for %q: %w: missing %s", locality, model.ErrMalformedResponse, field)
		}
	}

	body, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode baseline: %w", err)
	}
	var b model.Baseline
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("failed to get baseline for %q: %w: %v", locality, model.ErrMalformedResponse, err)
	}
	return &b, nil
}

var (
	predictionFields = []string{"predictions", "explanations", "trees_to_plant_for_happiness"}
	timePointFields  = []string{
		"year", "aqi", "water_quality", "pollution_index", "carbon_budget",
		"health_index", "respiratory_risk", "social_inequality", "happiness_index",
	}
)

func (c *HTTPTwinClient) Predict(ctx context.Context, req model.PredictionRequest) (*model.PredictionResult, error) {
	var body json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/predict", req, &body); err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	if err := checkPrediction(body); err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}

	var res model.PredictionResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("prediction request failed: %w: %v", model.ErrMalformedResponse, err)
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("prediction request failed: %w", err)
	}
	return &res, nil
}

// checkPrediction rejects bodies where a field the status or the chat
// context is derived from is absent or null, which would otherwise decode
// as zero.
func checkPrediction(body json.RawMessage) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	if err := requireFields(top, predictionFields...); err != nil {
		return err
	}
	var points []map[string]json.RawMessage
	if err := json.Unmarshal(top["predictions"], &points); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	for i, tp := range points {
		if err := requireFields(tp, timePointFields...); err != nil {
			return fmt.Errorf("%w (predictions[%d])", err, i)
		}
	}
	return nil
}

func requireFields(obj map[string]json.RawMessage, fields ...string) error {
	for _, f := range fields {
		v, ok := obj[f]
		if !ok || string(v) == "null" {
			return fmt.Errorf("%w: missing %s", model.ErrMalformedResponse, f)
		}
	}
	return nil
}

func (c *HTTPTwinClient) Chat(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
	var raw struct {
		Response *string `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/chat", req, &raw); err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	if raw.Response == nil {
		return nil, fmt.Errorf("chat request failed: %w: missing response", model.ErrMalformedResponse)
	}
	return &model.ChatResponse{Response: *raw.Response}, nil
}

func (c *HTTPTwinClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", model.ErrMalformedResponse, err)
	}
	return nil
}

// readDetail extracts FastAPI's {"detail": ...} message, falling back to the
// raw body.
func readDetail(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return ""
	}
	var fastapi struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(b, &fastapi) == nil && len(fastapi.Detail) > 0 {
		var s string
		if json.Unmarshal(fastapi.Detail, &s) == nil {
			return s
		}
		return string(fastapi.Detail)
	}
	return strings.TrimSpace(string(b))
}
