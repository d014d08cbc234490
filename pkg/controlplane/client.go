package controlplane

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

	"github.com/rs/zerolog"

	"github.com/opwatch/opwatch/pkg/tracker"
)

// DefaultRequestTimeout bounds a single control-plane request when the config
// does not say otherwise.
const DefaultRequestTimeout = 30 * time.Second

// ClientConfig holds the settings for a control-plane HTTP client.
type ClientConfig struct {
	// BaseURL is the root of the control-plane API, e.g.
	// "https://cp.example.com".
	BaseURL string

	// AuthToken, when set, is sent as a bearer token on every request.
	AuthToken string

	// RequestTimeout bounds a single HTTP request. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// HTTPClient overrides the underlying client, mainly for tests. The
	// timeout above is applied per request via context either way.
	HTTPClient *http.Client

	// Logger is the component logger. Defaults to a disabled logger.
	Logger zerolog.Logger
}

// Client talks JSON over HTTP to the mutation control plane. It implements
// tracker.ControlPlaneClient: submission failures come back as submission
// errors, an unknown token from the status endpoint becomes a
// token-not-found error, and every other status failure is transient.
type Client struct {
	baseURL    string
	authToken  string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a control-plane client from the given config.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("control plane base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid control plane base URL: %w", err)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// submitRequest is the JSON body for create and update submissions.
type submitRequest struct {
	ResourceType string `json:"resource_type"`
	DesiredState string `json:"desired_state,omitempty"`
	Patch        string `json:"patch,omitempty"`
}

// submitResponse is the JSON body the control plane returns when it accepts
// a mutation.
type submitResponse struct {
	Token string `json:"token"`
}

// errorResponse is the JSON body the control plane returns on failures.
type errorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Create submits a create mutation and returns its progress token.
func (c *Client) Create(ctx context.Context, resourceType, desiredState string) (tracker.ProgressToken, error) {
	body := submitRequest{
		ResourceType: resourceType,
		DesiredState: desiredState,
	}
	return c.submit(ctx, http.MethodPost, c.baseURL+"/v1/resources", body, tracker.OperationCreate)
}

// Update submits an update mutation for an existing resource.
func (c *Client) Update(ctx context.Context, resourceType, resourceID, patch string) (tracker.ProgressToken, error) {
	body := submitRequest{
		ResourceType: resourceType,
		Patch:        patch,
	}
	endpoint := fmt.Sprintf("%s/v1/resources/%s/%s",
		c.baseURL, url.PathEscape(resourceType), url.PathEscape(resourceID))
	return c.submit(ctx, http.MethodPatch, endpoint, body, tracker.OperationUpdate)
}

// Delete submits a delete mutation for an existing resource.
func (c *Client) Delete(ctx context.Context, resourceType, resourceID string) (tracker.ProgressToken, error) {
	endpoint := fmt.Sprintf("%s/v1/resources/%s/%s",
		c.baseURL, url.PathEscape(resourceType), url.PathEscape(resourceID))
	return c.submit(ctx, http.MethodDelete, endpoint, nil, tracker.OperationDelete)
}

// submit performs one mutating request and decodes the progress token.
func (c *Client) submit(ctx context.Context, method, endpoint string, body interface{}, op tracker.OperationKind) (tracker.ProgressToken, error) {
	status, payload, err := c.do(ctx, method, endpoint, body)
	if err != nil {
		return tracker.ProgressToken{}, tracker.NewSubmissionError(
			fmt.Sprintf("%s submission failed", op), err).WithOperation(op)
	}

	if status != http.StatusAccepted && status != http.StatusOK {
		return tracker.ProgressToken{}, tracker.NewSubmissionError(
			fmt.Sprintf("%s submission rejected", op), responseError(status, payload)).WithOperation(op)
	}

	var accepted submitResponse
	if err := json.Unmarshal(payload, &accepted); err != nil {
		return tracker.ProgressToken{}, tracker.NewSubmissionError(
			"failed to decode submission response", err).WithOperation(op)
	}
	if accepted.Token == "" {
		return tracker.ProgressToken{}, tracker.NewSubmissionError(
			"control plane accepted the mutation without a token", nil).WithOperation(op)
	}

	c.logger.Debug().
		Str("operation", string(op)).
		Str("token", accepted.Token).
		Msg("Mutation submitted")

	return tracker.ProgressToken{Token: accepted.Token}, nil
}

// Status queries the progress of a previously submitted mutation.
func (c *Client) Status(ctx context.Context, token string) (tracker.ProgressDescriptor, error) {
	endpoint := c.baseURL + "/v1/mutations/" + url.PathEscape(token)

	status, payload, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return tracker.ProgressDescriptor{}, tracker.NewTransientError(
			"status request failed", err).WithToken(token)
	}

	switch {
	case status == http.StatusOK:
		var descriptor tracker.ProgressDescriptor
		if err := json.Unmarshal(payload, &descriptor); err != nil {
			return tracker.ProgressDescriptor{}, tracker.NewTransientError(
				"failed to decode status response", err).WithToken(token)
		}
		return descriptor, nil

	case status == http.StatusNotFound || status == http.StatusGone:
		return tracker.ProgressDescriptor{}, tracker.NewTokenNotFoundError(token, responseError(status, payload))

	default:
		return tracker.ProgressDescriptor{}, tracker.NewTransientError(
			"status query failed", responseError(status, payload)).WithToken(token)
	}
}

// maxResponseBytes caps how much of a control-plane response is read.
const maxResponseBytes = 1 << 20

// do builds and executes one request with the client's timeout, auth and
// JSON headers applied. The response body is read fully before the request
// context is released; a chunked body that arrives after the headers must
// not be cut off by the per-request cancellation.
func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, payload, nil
}

// responseError turns a non-success response into an error, preferring the
// control plane's own message when the body carries one.
func responseError(status int, payload []byte) error {
	var body errorResponse
	if err := json.Unmarshal(payload, &body); err == nil && body.Message != "" {
		if body.Code != "" {
			return fmt.Errorf("control plane returned %d: %s (%s)", status, body.Message, body.Code)
		}
		return fmt.Errorf("control plane returned %d: %s", status, body.Message)
	}

	return fmt.Errorf("control plane returned %d", status)
}
