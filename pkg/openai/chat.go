package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"viral-clipper/log"
	apperrors "viral-clipper/pkg/errors"
)

// ChatCompletion sends one system+user exchange and returns the raw reply.
// Transport and auth failures come back as CodeOracle errors.
func (c *Client) ChatCompletion(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: c.temperature,
	}
	if c.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", apperrors.Wrap(apperrors.CodeCanceled, "oracle request canceled", ctx.Err())
		}
		log.GetLogger().Error("chat completion failed", zap.String("model", c.model), zap.Error(err))
		return "", apperrors.Wrap(apperrors.CodeOracle, "oracle request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.Wrap(apperrors.CodeOracle, "oracle returned no choices", errors.New("empty choices"))
	}

	log.GetLogger().Debug("chat completion done",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}
