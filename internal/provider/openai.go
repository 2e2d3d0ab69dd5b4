package provider

import (
	"context"
	"errors"
	"io"
	"net/http"

	"rookit/internal/chat"
	"rookit/internal/settings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatible 基于 go-openai SDK 的适配器，适用于 OpenAI 及兼容服务
// OpenAICompatible is an adapter on the go-openai SDK for OpenAI and compatible endpoints
type OpenAICompatible struct {
	client      *openai.Client
	vendor      string
	model       string
	temperature float32
	maxTokens   int
	user        string
	maxRetries  int
}

// NewOpenAICompatible 创建适配器；温度默认 0
// NewOpenAICompatible creates the adapter. Temperature defaults to 0.
func NewOpenAICompatible(vendor string, cfg settings.ProviderSettings, t Transport) *OpenAICompatible {
	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = trimSlash(cfg.BaseURL)
	httpClient := &http.Client{}
	if d := t.timeout(); d > 0 {
		httpClient.Timeout = d
	}
	config.HTTPClient = httpClient

	p := &OpenAICompatible{
		client:     openai.NewClientWithConfig(config),
		vendor:     vendor,
		model:      cfg.APIModelID,
		maxTokens:  cfg.ModelMaxTokens,
		user:       cfg.User,
		maxRetries: t.retries(),
	}
	if cfg.ModelTemperature != nil {
		p.temperature = float32(*cfg.ModelTemperature)
	}
	return p
}

func (p *OpenAICompatible) Model() string  { return p.model }
func (p *OpenAICompatible) Vendor() string { return p.vendor }

func (p *OpenAICompatible) request(systemPrompt string, history []chat.Message) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
		User:        p.user,
	}
}

func (p *OpenAICompatible) CreateMessage(ctx context.Context, systemPrompt string, history []chat.Message) (*Stream, error) {
	req := p.request(systemPrompt, history)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	var (
		sdkStream *openai.ChatCompletionStream
		err       error
	)
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if werr := backoff(ctx, attempt); werr != nil {
				return nil, werr
			}
		}
		sdkStream, err = p.client.CreateChatCompletionStream(ctx, req)
		if err == nil || !retryable(err) {
			break
		}
	}
	if err != nil {
		return nil, wrapErr(p.vendor, err)
	}

	return NewStream(ctx, func(ctx context.Context, emit func(Event) bool) error {
		defer sdkStream.Close()
		for {
			resp, err := sdkStream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return wrapErr(p.vendor, err)
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !emit(Event{Type: EventText, Text: choice.Delta.Content}) {
					return ctx.Err()
				}
			}
			// include_usage 时用量在最后一个 chunk 中返回
			// with include_usage the last chunk carries usage
			if resp.Usage != nil {
				if !emit(Event{Type: EventUsage, InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}) {
					return ctx.Err()
				}
			}
		}
	}), nil
}

func (p *OpenAICompatible) CompletePrompt(ctx context.Context, prompt string) (string, error) {
	req := p.request("", []chat.Message{{Role: chat.RoleUser, Content: prompt}})
	var (
		resp openai.ChatCompletionResponse
		err  error
	)
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			if werr := backoff(ctx, attempt); werr != nil {
				return "", werr
			}
		}
		resp, err = p.client.CreateChatCompletion(ctx, req)
		if err == nil || !retryable(err) {
			break
		}
	}
	if err != nil {
		return "", wrapErr(p.vendor, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// retryable 上下文错误与 4xx（429 除外）不重试
// retryable rejects context errors and 4xx responses other than 429
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status < 400 || status >= 500
}
