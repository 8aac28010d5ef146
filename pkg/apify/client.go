// Package apify is a client for the Apify platform APIs used by an actor at
// run time: run input, dataset output, status messages and pay-per-event
// billing.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpinspect", "apify")

const (
	// DefaultBaseURL is the public Apify API endpoint.
	DefaultBaseURL = "https://api.apify.com"

	tokenEnvVarName   = "APIFY_TOKEN"
	baseURLEnvVarName = "APIFY_API_BASE_URL"
	runIDEnvVarName   = "APIFY_ACTOR_RUN_ID"
	datasetEnvVarName = "APIFY_DEFAULT_DATASET_ID"
	kvStoreEnvVarName = "APIFY_DEFAULT_KEY_VALUE_STORE_ID"
)

// ErrMissingToken is returned when the platform token is not configured.
var ErrMissingToken = errors.New("apify: missing API token, set it in the APIFY_TOKEN environment variable")

// Platform is the platform surface the inspector needs.
// It is fronted by an interface so the pipeline is testable with a double.
type Platform interface {
	// GetInput fetches the raw run input record.
	GetInput(ctx context.Context) ([]byte, error)
	// PushData appends items to the default dataset.
	PushData(ctx context.Context, items any) error
	// SetStatusMessage sets the user visible status of the run.
	SetStatusMessage(ctx context.Context, msg string) error
	// Charge charges the given count of a pay-per-event billing event.
	Charge(ctx context.Context, eventName string, count int) error
}

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is an Apify API client scoped to one actor run.
type Client struct {
	token      string
	baseURL    string
	runID      string
	datasetID  string
	kvStoreID  string
	httpClient Doer

	// NewIdempotencyKey generates the idempotency key of a charge call.
	// Overridable in tests.
	NewIdempotencyKey func() string
}

var _ Platform = (*Client)(nil)

// Option is a functional option for the Client.
type Option func(*Client)

// WithToken passes the API token. If not set, the token is read from the
// APIFY_TOKEN environment variable.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithRunID sets the actor run ID used for status and billing calls.
func WithRunID(runID string) Option {
	return func(c *Client) {
		c.runID = runID
	}
}

// WithDatasetID sets the default dataset of the run.
func WithDatasetID(datasetID string) Option {
	return func(c *Client) {
		c.datasetID = datasetID
	}
}

// WithKeyValueStoreID sets the default key-value store of the run.
func WithKeyValueStoreID(kvStoreID string) Option {
	return func(c *Client) {
		c.kvStoreID = kvStoreID
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client Doer) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// New returns a new Apify client. Unset values are resolved from the
// standard actor runtime environment variables. Missing token is a fatal
// configuration error.
func New(opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}

	c.token = values.StringsCoalesce(c.token, os.Getenv(tokenEnvVarName))
	c.baseURL = strings.TrimSuffix(values.StringsCoalesce(c.baseURL, os.Getenv(baseURLEnvVarName), DefaultBaseURL), "/")
	c.runID = values.StringsCoalesce(c.runID, os.Getenv(runIDEnvVarName))
	c.datasetID = values.StringsCoalesce(c.datasetID, os.Getenv(datasetEnvVarName))
	c.kvStoreID = values.StringsCoalesce(c.kvStoreID, os.Getenv(kvStoreEnvVarName))

	if c.token == "" {
		return nil, errors.WithStack(ErrMissingToken)
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.NewIdempotencyKey == nil {
		c.NewIdempotencyKey = uuid.NewString
	}

	return c, nil
}

// GetInput implements the Platform interface.
func (c *Client) GetInput(ctx context.Context) ([]byte, error) {
	if c.kvStoreID == "" {
		return nil, errors.New("apify: default key-value store is not configured")
	}
	url := fmt.Sprintf("%s/v2/key-value-stores/%s/records/INPUT", c.baseURL, c.kvStoreID)
	return c.do(ctx, http.MethodGet, url, nil, nil)
}

// PushData implements the Platform interface.
func (c *Client) PushData(ctx context.Context, items any) error {
	if c.datasetID == "" {
		return errors.New("apify: default dataset is not configured")
	}
	url := fmt.Sprintf("%s/v2/datasets/%s/items", c.baseURL, c.datasetID)
	_, err := c.do(ctx, http.MethodPost, url, items, nil)
	return err
}

// SetStatusMessage implements the Platform interface.
func (c *Client) SetStatusMessage(ctx context.Context, msg string) error {
	if c.runID == "" {
		return errors.New("apify: actor run ID is not configured")
	}
	url := fmt.Sprintf("%s/v2/actor-runs/%s", c.baseURL, c.runID)
	_, err := c.do(ctx, http.MethodPut, url, map[string]any{
		"statusMessage": msg,
	}, nil)
	return err
}

// Charge implements the Platform interface.
func (c *Client) Charge(ctx context.Context, eventName string, count int) error {
	if c.runID == "" {
		return errors.New("apify: actor run ID is not configured")
	}
	url := fmt.Sprintf("%s/v2/actor-runs/%s/charge", c.baseURL, c.runID)
	headers := map[string]string{
		"Idempotency-Key": c.NewIdempotencyKey(),
	}
	_, err := c.do(ctx, http.MethodPost, url, map[string]any{
		"eventName": eventName,
		"count":     count,
	}, headers)
	if err != nil {
		return err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "charged",
		"event", eventName,
		"count", count,
	)
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, payload any, headers map[string]string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		js, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "apify: failed to marshal request")
		}
		body = bytes.NewReader(js)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "apify: failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "apify: failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "apify: failed to read response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var em errorMessage
		if err := json.Unmarshal(respBody, &em); err == nil && em.Error.Message != "" {
			return nil, errors.Newf("apify: API returned unexpected status code: %d: %s", resp.StatusCode, em.Error.Message)
		}
		return nil, errors.Newf("apify: API returned unexpected status code: %d", resp.StatusCode)
	}

	return respBody, nil
}

type errorMessage struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
