package tools

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

	openai "github.com/sashabaranov/go-openai"

	"github.com/lyzr/agentflow/common/logger"
	"github.com/lyzr/agentflow/common/metrics"
	"github.com/lyzr/agentflow/common/models"
)

// Definitions converts stored tools into the function declarations
// sent with a chat completion. All parameters are exposed as string
// properties; nothing is marked required.
func Definitions(ts []*models.Tool) []openai.Tool {
	defs := make([]openai.Tool, 0, len(ts))
	for _, t := range ts {
		properties := map[string]any{}
		for _, p := range t.Parameters {
			properties[p.Name] = map[string]any{
				"type":        "string",
				"description": p.Description,
			}
		}

		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": properties,
				},
			},
		})
	}
	return defs
}

// Executor invokes a tool with the arguments the model produced and
// returns the result text fed back to the conversation.
type Executor interface {
	Execute(ctx context.Context, tool *models.Tool, args map[string]any) (string, error)
}

// HTTPExecutor calls the tool's backing HTTP endpoint. GET requests
// carry arguments as query parameters, everything else as a JSON body.
type HTTPExecutor struct {
	client    *http.Client
	validator *URLValidator
	log       *logger.Logger
}

// NewHTTPExecutor creates an executor with the given request timeout
func NewHTTPExecutor(timeout time.Duration, log *logger.Logger) *HTTPExecutor {
	return &HTTPExecutor{
		client:    &http.Client{Timeout: timeout},
		validator: NewURLValidator(),
		log:       log,
	}
}

// Execute performs the HTTP call. Tool failures come back as errors;
// the agent handler turns them into an error message for the model
// rather than failing the node.
func (e *HTTPExecutor) Execute(ctx context.Context, tool *models.Tool, args map[string]any) (string, error) {
	if err := e.validator.Validate(tool.APIURL); err != nil {
		metrics.ToolInvocations.WithLabelValues("blocked").Inc()
		return "", fmt.Errorf("tool %s: %w", tool.Name, err)
	}

	method := strings.ToUpper(tool.Method)
	if method == "" {
		method = http.MethodPost
	}

	var req *http.Request
	var err error

	if method == http.MethodGet {
		endpoint := tool.APIURL
		if len(args) > 0 {
			q := url.Values{}
			for k, v := range args {
				q.Set(k, fmt.Sprintf("%v", v))
			}
			sep := "?"
			if strings.Contains(endpoint, "?") {
				sep = "&"
			}
			endpoint = endpoint + sep + q.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	} else {
		body, merr := json.Marshal(args)
		if merr != nil {
			return "", fmt.Errorf("marshal tool arguments: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, method, tool.APIURL, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return "", fmt.Errorf("build tool request: %w", err)
	}

	for k, v := range tool.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		metrics.ToolInvocations.WithLabelValues("error").Inc()
		return "", fmt.Errorf("tool %s: %w", tool.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ToolInvocations.WithLabelValues("error").Inc()
		return "", fmt.Errorf("tool %s: read response: %w", tool.Name, err)
	}

	if resp.StatusCode >= 400 {
		metrics.ToolInvocations.WithLabelValues("error").Inc()
		return "", fmt.Errorf("tool %s: status %d: %s", tool.Name, resp.StatusCode, string(body))
	}

	metrics.ToolInvocations.WithLabelValues("ok").Inc()
	return string(body), nil
}
