package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chat-gateway/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 30 * time.Second

	APITypeOpenAI = "openai"
	APITypeAzure  = "azure"
)

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []domain.Turn `json:"messages"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int         `json:"index"`
		Message domain.Turn `json:"message"`
	} `json:"choices"`
}

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client is a focused OpenAI-compatible client for chat completions. It also
// speaks the Azure OpenAI deployment dialect.
type Client struct {
	baseURL    string
	httpClient *http.Client
	model      string
	apiType    string
	apiVersion string

	getter      Getter
	paramPrefix string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sets a static key and disables the parameter store lookup.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithParamStore reads the key from "<prefix>/open-ai-token" on first use.
func WithParamStore(g Getter, paramPrefix string) Option {
	return func(c *Client) {
		c.getter = g
		c.paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	}
}

// WithAzure switches to Azure OpenAI: the model names the deployment and
// apiVersion is sent as the api-version query parameter.
func WithAzure(apiVersion string) Option {
	return func(c *Client) {
		c.apiType = APITypeAzure
		c.apiVersion = strings.TrimSpace(apiVersion)
	}
}

// NewClient creates a Client for model. A key source is required: either
// WithAPIKey or WithParamStore.
func NewClient(model string, opts ...Option) (*Client, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		model:      model,
		apiType:    APITypeOpenAI,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		if c.getter == nil {
			return nil, errors.New("openai: an API key or paramstore getter is required")
		}
		if c.paramPrefix == "" {
			return nil, errors.New("openai: parameter prefix must not be empty")
		}
	}
	if c.apiType == APITypeAzure {
		if c.baseURL == defaultBaseURL || c.baseURL == "" {
			return nil, errors.New("openai: azure requires a resource base URL")
		}
		if c.apiVersion == "" {
			return nil, errors.New("openai: azure requires an api version")
		}
	}
	return c, nil
}

// Model returns the configured model or deployment name.
func (c *Client) Model() string {
	return c.model
}

// resolveAPIKey returns the static key, or fetches it from SSM and caches it
// for the process lifetime. Failed fetches are retried on the next call.
func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := fetchAPIKeyFromParamStore(ctx, c.getter, c.tokenParameterName())
	if err != nil {
		return "", err
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

// resolvedHTTPClient returns the configured HTTP client, or a default if none
// was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func azureChatURL(baseURL, deployment, apiVersion string) string {
	base := strings.TrimRight(baseURL, "/")
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		base, url.PathEscape(deployment), url.QueryEscape(apiVersion))
}

// Generate sends the ordered turns and returns the assistant reply. The turns
// slice is only read.
func (c *Client) Generate(ctx context.Context, turns []domain.Turn) (string, error) {
	if len(turns) == 0 {
		return "", &UpstreamError{Category: CategoryInvalidRequest, Err: errors.New("no turns to send")}
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return "", &UpstreamError{Category: CategoryAuthFailed, Err: err}
	}

	reqBody := chatRequest{Model: c.model, Messages: turns}
	endpoint := chatURL(c.baseURL)
	if c.apiType == APITypeAzure {
		reqBody.Model = ""
		endpoint = azureChatURL(c.baseURL, c.model, c.apiVersion)
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if reqErr != nil {
		return "", fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiType == APITypeAzure {
		req.Header.Set("api-key", apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		return "", err
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return "", &UpstreamError{Category: CategoryUnknown, Err: fmt.Errorf("decode response: %w", decErr)}
	}
	if len(payload.Choices) == 0 {
		return "", &UpstreamError{Category: CategoryUnknown, Err: errors.New("no choices in response")}
	}
	return payload.Choices[0].Message.Content, nil
}

func (c *Client) doJSONRequest(req *http.Request, endpoint string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, &UpstreamError{Category: categoryForTransport(doErr), URL: endpoint, Err: fmt.Errorf("request failed: %w", doErr)}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &UpstreamError{
			Category:   categoryForStatus(res.StatusCode),
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, &UpstreamError{Category: categoryForTransport(err), URL: endpoint, Err: fmt.Errorf("read response body: %w", err)}
	}
	return buf, nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", fmt.Errorf("openai: API token is empty")
	}
	return tp.Token, nil
}
