package contextmgr

import (
	"strings"
	"sync"
	"unicode"

	"rookit/internal/chat"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const (
	defaultEncoding = "cl100k_base"
	// messageOverhead 每条消息的角色与分隔符开销
	// messageOverhead covers the role marker and separators of one message
	messageOverhead = 4
	// replyPriming 请求末尾为助手回复预留的 token
	// replyPriming is reserved at the end of a request for the assistant reply header
	replyPriming = 3
)

// encoders 按编码名缓存 BPE 表；加载失败同样缓存，避免每个任务重复下载
// encoders caches BPE tables by encoding name. Failures are cached too so that
// an offline process does not retry the download for every task.
var encoders = struct {
	sync.Mutex
	byName map[string]*tiktoken.Tiktoken
}{byName: map[string]*tiktoken.Tiktoken{}}

func loadEncoding(name string) *tiktoken.Tiktoken {
	encoders.Lock()
	defer encoders.Unlock()
	if enc, ok := encoders.byName[name]; ok {
		return enc
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		enc = nil
	}
	encoders.byName[name] = enc
	return enc
}

// Tokenizer 用于上下文窗口预算与用量估算的 token 计数器
// Tokenizer counts tokens for context-window budgeting and usage estimates.
// Without a BPE table it estimates from the text itself.
type Tokenizer struct {
	enc      *tiktoken.Tiktoken
	encoding string
	mu       sync.Mutex
}

var (
	defaultOnce sync.Once
	defaultTok  *Tokenizer
)

// DefaultTokenizer returns a shared cl100k_base tokenizer.
func DefaultTokenizer() *Tokenizer {
	defaultOnce.Do(func() { defaultTok = NewTokenizer(defaultEncoding) })
	return defaultTok
}

// NewTokenizer 使用指定编码；编码不可用时退化为估算
// NewTokenizer uses the named encoding and degrades to estimation when it is unavailable
func NewTokenizer(encoding string) *Tokenizer {
	t := &Tokenizer{encoding: encoding}
	if strings.TrimSpace(encoding) != "" {
		t.enc = loadEncoding(encoding)
	}
	return t
}

// Offline returns a tokenizer that never loads a BPE table.
func Offline() *Tokenizer { return &Tokenizer{encoding: defaultEncoding} }

// NewTokenizerForModel picks the encoding that matches model.
func NewTokenizerForModel(model string) *Tokenizer {
	return NewTokenizer(EncodingFor(model))
}

func (t *Tokenizer) IsPrecise() bool { return t.enc != nil }

// CountText counts the tokens of one string.
func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if t.enc == nil {
		return estimate(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// Count 统计历史消息，包含每条消息的固定开销
// Count sums the history including the fixed per-message overhead
func (t *Tokenizer) Count(messages []chat.Message) int {
	total := 0
	for _, m := range messages {
		total += messageOverhead + t.CountText(m.Content)
	}
	return total
}

// CountRequest 估算一次请求的输入 token：系统提示、历史与回复预留
// CountRequest estimates the input tokens of one request: system prompt, history and reply priming
func (t *Tokenizer) CountRequest(system string, messages []chat.Message) int {
	n := t.Count(messages) + replyPriming
	if system != "" {
		n += messageOverhead + t.CountText(system)
	}
	return n
}

// estimate 离线估算：表意文字与假名每字一个 token，其余约四个字符一个 token
// estimate is the offline fallback: one token per ideograph or kana, about four characters per token otherwise
func estimate(text string) int {
	wide, other := 0, 0
	for _, r := range text {
		if unicode.In(r, unicode.Han, unicode.Hangul, unicode.Hiragana, unicode.Katakana) {
			wide++
			continue
		}
		other++
	}
	n := wide + (other+3)/4
	if n == 0 {
		n = 1
	}
	return n
}

var encodingPrefixes = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"chatgpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"gpt-5", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"o4", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
}

// EncodingFor 按模型名选择编码；Claude 及未知模型按 cl100k_base 估算
// EncodingFor maps a model id to an encoding. Claude and unknown models are estimated with cl100k_base.
func EncodingFor(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	for _, p := range encodingPrefixes {
		if strings.HasPrefix(m, p.prefix) {
			return p.encoding
		}
	}
	return defaultEncoding
}
