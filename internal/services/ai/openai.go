package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default chat model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default embedding model to use
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second

	// retryDelay is the wait before the single retry on rate-limit or
	// overload responses.
	retryDelay = 1 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// OpenAIProvider implements the LanguageModel interface using OpenAI's API
type OpenAIProvider struct {
	client         openai.Client
	model          string
	embeddingModel string
	logger         *zap.Logger
	debugMode      bool
}

// Ensure OpenAIProvider implements LanguageModel
var _ LanguageModel = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return NewOpenAIProviderWithLogger(apiKey, DefaultOpenAIBaseURL, model, "", nil, false)
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support
func NewOpenAIProviderWithLogger(apiKey, baseURL, model, embeddingModel string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIProvider{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		logger:         logger,
		debugMode:      debugMode,
	}
}

// withRetry runs call, retrying exactly once after a fixed delay when
// the failure is a transient rate-limit or overload response.
func withRetry[T any](ctx context.Context, call func() (T, error)) (T, error) {
	result, err := call()
	if err == nil || !IsRateLimitError(err) || IsQuotaError(err) {
		return result, err
	}

	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	return call()
}

// Complete sends a system instruction and user prompt, requesting a
// JSON-object response, and returns the raw response text.
func (p *OpenAIProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	p.logRequest("complete", len(prompt), 2, prompt)
	start := time.Now()
	resp, err := withRetry(ctx, func() (*openai.ChatCompletion, error) {
		return p.client.Chat.Completions.New(ctx, req)
	})
	latency := time.Since(start)
	if err != nil {
		p.logError("complete", err, latency)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("completion failed: %w", apiErr)
		}
		return "", fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	p.logResponse("complete", content, latency)
	return content, nil
}

// CompleteWithTools drives one turn of a tool-calling exchange.
func (p *OpenAIProvider) CompleteWithTools(ctx context.Context, messages []ChatMessage, tools []ToolSpec) (*ChatResult, error) {
	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: convertMessages(messages),
		Tools:    convertTools(tools),
	}

	p.logRequest("complete_with_tools", 0, len(messages), "")
	start := time.Now()
	resp, err := withRetry(ctx, func() (*openai.ChatCompletion, error) {
		return p.client.Chat.Completions.New(ctx, req)
	})
	latency := time.Since(start)
	if err != nil {
		p.logError("complete_with_tools", err, latency)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("tool completion failed: %w", apiErr)
		}
		return nil, fmt.Errorf("tool completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	choice := resp.Choices[0]
	result := &ChatResult{StopReason: StopEndTurn}
	if choice.Message.Content != "" {
		result.TextBlocks = append(result.TextBlocks, choice.Message.Content)
	}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if choice.FinishReason == "tool_calls" || len(result.ToolCalls) > 0 {
		result.StopReason = StopToolUse
	}

	p.logResponse("complete_with_tools", choice.Message.Content, latency)
	return result, nil
}

// Embed returns the embedding vector for a text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	req := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	}

	resp, err := withRetry(ctx, func() (*openai.CreateEmbeddingResponse, error) {
		return p.client.Embeddings.New(ctx, req)
	})
	if err != nil {
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("embedding failed: %w", apiErr)
		}
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding in response")
	}
	return resp.Data[0].Embedding, nil
}

// DescribeImage returns a textual description of an image.
func (p *OpenAIProvider) DescribeImage(ctx context.Context, imageURL, prompt string) (string, error) {
	if prompt == "" {
		prompt = "Describe this image concisely, capturing any text it contains."
	}
	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: imageURL,
				}),
			}),
		},
	}

	resp, err := withRetry(ctx, func() (*openai.ChatCompletion, error) {
		return p.client.Chat.Completions.New(ctx, req)
	})
	if err != nil {
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("image description failed: %w", apiErr)
		}
		return "", fmt.Errorf("image description failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func convertMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				assistant := openai.ChatCompletionAssistantMessageParam{}
				if m.Content != "" {
					assistant.Content.OfString = openai.String(m.Content)
				}
				for _, tc := range m.ToolCalls {
					assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: tc.Arguments,
							},
						},
					})
				}
				out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
			} else {
				out = append(out, openai.AssistantMessage(m.Content))
			}
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func convertTools(tools []ToolSpec) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  shared.FunctionParameters(params),
		}))
	}
	return out
}

// ExtractJSONObject trims any prose surrounding a JSON object in a
// model response, returning the substring from the first "{" to the
// last "}". Returns the input unchanged when no braces are found.
func ExtractJSONObject(raw string) string {
	start := bytes.IndexByte([]byte(raw), '{')
	end := bytes.LastIndexByte([]byte(raw), '}')
	if start != -1 && end != -1 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// ExtractJSONArray does the same for a JSON array response.
func ExtractJSONArray(raw string) string {
	start := bytes.IndexByte([]byte(raw), '[')
	end := bytes.LastIndexByte([]byte(raw), ']')
	if start != -1 && end != -1 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func (p *OpenAIProvider) logRequest(operation string, promptLen, messageCount int, preview string) {
	if p.logger == nil || !p.debugMode {
		return
	}
	p.logger.Debug("llm_api_request",
		zap.String("operation", operation),
		zap.String("model", p.model),
		zap.Int("prompt_length", promptLen),
		zap.Int("message_count", messageCount),
		zap.String("prompt_preview", SanitizePrompt(preview, true)),
	)
}

func (p *OpenAIProvider) logResponse(operation, content string, latency time.Duration) {
	if p.logger == nil || !p.debugMode {
		return
	}
	p.logger.Debug("llm_api_response",
		zap.String("operation", operation),
		zap.String("model", p.model),
		zap.Int("response_length", len(content)),
		zap.String("response_preview", SanitizeResponse(content, true)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)
}

func (p *OpenAIProvider) logError(operation string, err error, latency time.Duration) {
	if p.logger == nil || !p.debugMode {
		return
	}
	p.logger.Debug("llm_api_error",
		zap.String("operation", operation),
		zap.String("model", p.model),
		zap.Error(err),
		zap.Duration("latency", latency),
	)
}
