package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"rookit/internal/chat"
	"rookit/internal/settings"
)

// 事件类型 / Event types
const (
	EventText  = "text"
	EventUsage = "usage"
)

// Event 流式补全中的一项：文本片段或用量统计
// Event is one item of a streamed completion: a text chunk or a usage report
type Event struct {
	Type         string `json:"type"`
	Text         string `json:"text,omitempty"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}

// Handler 供应商适配器的统一接口
// Handler is the uniform interface every vendor adapter implements
type Handler interface {
	// CreateMessage 开始一次流式补全
	// CreateMessage starts a streamed completion of history under systemPrompt
	CreateMessage(ctx context.Context, systemPrompt string, history []chat.Message) (*Stream, error)

	// CompletePrompt 单轮非流式补全
	// CompletePrompt runs a single non-streamed completion
	CompletePrompt(ctx context.Context, prompt string) (string, error)

	Model() string
	Vendor() string
}

// ProviderError 供应商传输或 API 错误
// ProviderError wraps a transport or API failure with the vendor name
type ProviderError struct {
	Vendor string
	Err    error
}

func (e *ProviderError) Error() string {
	msg := "unknown error"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s completion error: %s", e.Vendor, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func wrapErr(vendor string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Vendor: vendor, Err: err}
}

// Stream 惰性、不可重启、可取消的事件序列
// Stream is a lazy, non-restartable, cancellable sequence of events.
//
// Consume it either with Recv until io.EOF, or by ranging over Events and
// then checking Err. Cancelling the creating context stops the producer at
// its next send.
type Stream struct {
	events chan Event
	cancel context.CancelFunc
	err    error
	once   sync.Once
}

// NewStream 在独立 goroutine 中运行 produce；emit 在流被取消后返回 false
// NewStream runs produce on its own goroutine. emit returns false once the stream is cancelled.
func NewStream(ctx context.Context, produce func(ctx context.Context, emit func(Event) bool) error) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{events: make(chan Event), cancel: cancel}
	go func() {
		defer close(s.events)
		defer cancel()
		emit := func(ev Event) bool {
			select {
			case s.events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		err := produce(ctx, emit)
		if err == nil {
			err = ctx.Err()
		}
		s.err = err
	}()
	return s
}

// Recv returns the next event, io.EOF at the end, or the error that stopped the stream.
func (s *Stream) Recv() (Event, error) {
	ev, ok := <-s.events
	if ok {
		return ev, nil
	}
	if s.err != nil {
		return Event{}, s.err
	}
	return Event{}, io.EOF
}

// Events returns the channel of events; it is closed when the stream ends.
func (s *Stream) Events() <-chan Event { return s.events }

// Err reports why the stream ended. Only valid after Events is closed.
func (s *Stream) Err() error { return s.err }

// Close cancels the producer and drains pending events.
func (s *Stream) Close() {
	s.once.Do(func() {
		s.cancel()
		for range s.events {
		}
	})
}

// Transport 所有适配器共享的传输参数
// Transport holds the transport knobs shared by every adapter
type Transport struct {
	TimeoutMS  int
	MaxRetries int
}

func (t Transport) timeout() time.Duration {
	if t.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

func (t Transport) retries() int {
	if t.MaxRetries < 0 {
		return 0
	}
	return t.MaxRetries
}

var (
	ErrMissingAPIKey   = errors.New("provider: api key is required")
	ErrMissingBaseURL  = errors.New("provider: base url is required")
	ErrUnknownProvider = errors.New("provider: unknown api provider")
)

// 默认值 / Defaults
const (
	DefaultOpenAIBaseURL  = "https://api.openai.com/v1"
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultMaxTokens      = 8192
)

// Build 按 apiProvider 选择适配器
// Build selects an adapter by apiProvider. An empty provider means openai.
func Build(cfg settings.ProviderSettings, t Transport) (Handler, error) {
	cfg = cfg.Normalized()
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	switch cfg.APIProvider {
	case "", settings.ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOpenAIBaseURL
		}
		if cfg.APIModelID == "" {
			cfg.APIModelID = DefaultOpenAIModel
		}
		return NewOpenAICompatible(settings.ProviderOpenAI, cfg, t), nil
	case settings.ProviderOpenAICompatible:
		if cfg.BaseURL == "" {
			return nil, ErrMissingBaseURL
		}
		if cfg.APIModelID == "" {
			cfg.APIModelID = DefaultOpenAIModel
		}
		return NewOpenAICompatible(settings.ProviderOpenAICompatible, cfg, t), nil
	case settings.ProviderAnthropic:
		if cfg.APIModelID == "" {
			cfg.APIModelID = DefaultAnthropicModel
		}
		return NewAnthropic(cfg, t), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.APIProvider)
	}
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(150*(1<<(attempt-1))) * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func trimSlash(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
