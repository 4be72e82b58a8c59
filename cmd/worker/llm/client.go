package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/agentflow/common/config"
	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/metrics"
)

// Request is a single chat completion call
type Request struct {
	Model    string
	Messages []openai.ChatCompletionMessage
	Tools    []openai.Tool

	// JSONMode asks the provider for a JSON object response
	JSONMode bool
}

// Response is the assistant turn. Either Content is set or the model
// asked for tool invocations.
type Response struct {
	Content   string
	ToolCalls []openai.ToolCall
}

// Client is the chat completion interface the node handlers use
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// OpenAI is the production client. It talks to any OpenAI-compatible
// endpoint and retries transient failures with exponential backoff.
type OpenAI struct {
	api          *openai.Client
	defaultModel string
	maxRetries   int
	log          *logger.Logger
}

// NewOpenAI creates a client from LLM config
func NewOpenAI(cfg config.LLMConfig, log *logger.Logger) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		api:          openai.NewClientWithConfig(clientConfig),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		log:          log,
	}
}

// Complete performs a chat completion. Rate limits, 5xx responses and
// network errors are retried; anything else fails immediately.
func (c *OpenAI) Complete(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: req.Messages,
		Tools:    req.Tools,
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var resp openai.ChatCompletionResponse

	operation := func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, apiReq)
		if err == nil {
			return nil
		}
		if retryable(err) {
			c.log.Warn("llm request failed, retrying", "model", model, "error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	metrics.LLMRequests.WithLabelValues("ok").Inc()

	choice := resp.Choices[0].Message
	return &Response{
		Content:   choice.Content,
		ToolCalls: choice.ToolCalls,
	}, nil
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
