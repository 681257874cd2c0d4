package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"
)

// SDKClient generates through the official genai SDK instead of raw REST.
type SDKClient struct {
	client *genai.Client
	model  string
}

// NewSDKClient builds a genai-backed model. A missing API key is reported on
// Generate, matching the REST client.
func NewSDKClient(ctx context.Context, baseURL, apiKey, model string, timeout time.Duration) (*SDKClient, error) {
	if model == "" {
		model = DefaultModel
	}
	if apiKey == "" {
		return &SDKClient{model: model}, nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if baseURL != "" && strings.TrimRight(baseURL, "/") != DefaultBaseURL {
		root, version := splitVersion(baseURL)
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: root, APIVersion: version}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &SDKClient{client: client, model: model}, nil
}

// splitVersion separates ".../v1beta" into the root URL and API version.
func splitVersion(baseURL string) (string, string) {
	baseURL = strings.TrimRight(baseURL, "/")
	i := strings.LastIndex(baseURL, "/")
	if i < 0 || !strings.HasPrefix(baseURL[i+1:], "v1") {
		return baseURL + "/", ""
	}
	return baseURL[:i+1], baseURL[i+1:]
}

func (s *SDKClient) Name() string { return s.model }

func (s *SDKClient) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	if s.client == nil {
		return "", errMissingKey
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(temperature)),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", sdkError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", &EmptyResponseError{}
	}
	return text, nil
}

// Ping checks that the configured model is reachable
func (s *SDKClient) Ping(ctx context.Context) error {
	if s.client == nil {
		return errMissingKey
	}
	if _, err := s.client.Models.Get(ctx, s.model, nil); err != nil {
		return sdkError(err)
	}
	return nil
}

func sdkError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("gemini request: %w", err)
	}
	return &TransportError{Status: apiErr.Code, Body: apiErrorBody(apiErr)}
}

// apiErrorBody rebuilds the upstream body. The SDK keeps a non-JSON body
// verbatim in Message and marks that case with the HTTP status line; a JSON
// body was decoded from the {"error": {...}} envelope, which is re-encoded.
func apiErrorBody(e genai.APIError) string {
	if e.Status == "" || strings.HasPrefix(e.Status, strconv.Itoa(e.Code)) {
		return e.Message
	}
	b, err := json.Marshal(map[string]genai.APIError{"error": e})
	if err != nil {
		return e.Message
	}
	return string(b)
}
