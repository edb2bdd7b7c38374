package anthropic

import (
	"context"

	"github.com/rfontaine/sundog/internal/provider"
)

// Complete sends a synchronous completion request to the Anthropic Messages API.
func (c *Client) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	params := convertRequest(req, &c.config, c.logger)

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return provider.CompletionResponse{}, mapError(err)
	}

	return convertResponse(msg), nil
}

// HealthCheck sends a minimal completion to verify the API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.client.Messages.New(ctx, convertRequest(provider.CompletionRequest{
		Messages:  []provider.Message{{Role: provider.MessageRoleUser, Content: "ping"}},
		MaxTokens: 1,
	}, &c.config, c.logger))
	return mapError(err)
}
