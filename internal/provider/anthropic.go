package provider

import (
	"context"
	"strings"

	"rookit/internal/chat"
	"rookit/internal/settings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic 基于官方 SDK 的 Messages API 适配器
// Anthropic is an adapter on the official SDK's Messages API
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature *float64
	user        string
}

func NewAnthropic(cfg settings.ProviderSettings, t Transport) *Anthropic {
	opts := []aoption.RequestOption{
		aoption.WithAPIKey(cfg.APIKey),
		aoption.WithMaxRetries(t.retries()),
	}
	if base := trimSlash(cfg.BaseURL); base != "" {
		opts = append(opts, aoption.WithBaseURL(base))
	}
	if d := t.timeout(); d > 0 {
		opts = append(opts, aoption.WithRequestTimeout(d))
	}
	maxTokens := int64(cfg.ModelMaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Anthropic{
		client:      anthropic.NewClient(opts...),
		model:       cfg.APIModelID,
		maxTokens:   maxTokens,
		temperature: cfg.ModelTemperature,
		user:        cfg.User,
	}
}

func (p *Anthropic) Model() string  { return p.model }
func (p *Anthropic) Vendor() string { return settings.ProviderAnthropic }

func (p *Anthropic) params(systemPrompt string, history []chat.Message) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case chat.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case chat.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	temperature := 0.0
	if p.temperature != nil {
		temperature = *p.temperature
	}
	params.Temperature = anthropic.Float(temperature)
	if p.user != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(p.user)}
	}
	return params
}

func (p *Anthropic) CreateMessage(ctx context.Context, systemPrompt string, history []chat.Message) (*Stream, error) {
	params := p.params(systemPrompt, history)
	return NewStream(ctx, func(ctx context.Context, emit func(Event) bool) error {
		sdkStream := p.client.Messages.NewStreaming(ctx, params)
		defer sdkStream.Close()

		msg := anthropic.Message{}
		for sdkStream.Next() {
			event := sdkStream.Current()
			if err := msg.Accumulate(event); err != nil {
				return wrapErr(p.Vendor(), err)
			}
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if d, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" {
					if !emit(Event{Type: EventText, Text: d.Text}) {
						return ctx.Err()
					}
				}
			}
		}
		if err := sdkStream.Err(); err != nil {
			return wrapErr(p.Vendor(), err)
		}
		emit(Event{
			Type:         EventUsage,
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		})
		return nil
	}), nil
}

func (p *Anthropic) CompletePrompt(ctx context.Context, prompt string) (string, error) {
	params := p.params("", []chat.Message{{Role: chat.RoleUser, Content: prompt}})
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", wrapErr(p.Vendor(), err)
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}
