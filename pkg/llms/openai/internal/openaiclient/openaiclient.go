// Package openaiclient is a thin wrapper over the official OpenAI Go SDK
// for the Chat Completions API and its Azure and Perplexity compatible
// variants.
package openaiclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpinspect/pkg/schema"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	DefaultChatModel = "gpt-5-mini"
	DefaultMaxTokens = 2 * 16384
)

// ErrEmptyResponse is returned when the OpenAI API returns an empty response.
var ErrEmptyResponse = errors.New("empty response")

type ProviderType string

const (
	ProviderOpenAI     ProviderType = "OPENAI"
	ProviderAzure      ProviderType = "AZURE"
	ProviderAzureAD    ProviderType = "AZURE_AD"
	ProviderPerplexity ProviderType = "PERPLEXITY"
)

// Client wraps the SDK chat completions service with provider defaults.
type Client struct {
	Model    string
	Provider ProviderType

	ResponseFormat *schema.ResponseFormat

	chat openai.ChatCompletionService
}

// New returns a new OpenAI client.
func New(provider ProviderType, model string, token string, baseURL string, organization string,
	apiVersion string, httpClient option.HTTPClient,
	responseFormat *schema.ResponseFormat,
) (*Client, error) {
	if token == "" {
		return nil, errors.New("missing API token")
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var reqOpts []option.RequestOption
	if IsAzure(provider) {
		// Azure nests chat completions under the deployment and versions
		// the API with a query parameter:
		// /openai/deployments/{model}/chat/completions?api-version={api_version}
		reqOpts = append(reqOpts,
			option.WithBaseURL(fmt.Sprintf("%s/openai/deployments/%s", baseURL, model)),
			option.WithQuery("api-version", apiVersion),
		)
		if provider == ProviderAzure {
			reqOpts = append(reqOpts, option.WithHeader("api-key", token))
		} else {
			reqOpts = append(reqOpts, option.WithHeader("Authorization", "Bearer "+token))
		}
	} else {
		reqOpts = append(reqOpts,
			option.WithBaseURL(baseURL),
			option.WithAPIKey(token),
		)
	}
	if organization != "" {
		reqOpts = append(reqOpts, option.WithHeader("OpenAI-Organization", organization))
	}
	if httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(httpClient))
	}

	cli := openai.NewClient(reqOpts...)
	return &Client{
		Model:          model,
		Provider:       provider,
		ResponseFormat: responseFormat,
		chat:           cli.Chat.Completions,
	}, nil
}

// IsAzure reports whether the provider is an Azure variant.
func IsAzure(apiType ProviderType) bool {
	return apiType == ProviderAzure || apiType == ProviderAzureAD
}

// CreateChat creates chat request.
func (c *Client) CreateChat(ctx context.Context, r *openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if r.Model == "" {
		if c.Model == "" {
			r.Model = DefaultChatModel
		} else {
			r.Model = shared.ChatModel(c.Model)
		}
	}
	resp, err := c.chat.New(ctx, *r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	return resp, nil
}
