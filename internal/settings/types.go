package settings

import (
	"strings"
)

// Provider 名称 / Provider names
const (
	ProviderOpenAI           = "openai"
	ProviderOpenAICompatible = "openai-compatible"
	ProviderAnthropic        = "anthropic"
)

// ProviderSettings 一个配置档的供应商参数，字段名与前端协议兼容
// ProviderSettings holds the provider parameters of one profile; field names match the wire protocol
type ProviderSettings struct {
	APIProvider      string   `json:"apiProvider,omitempty"`
	APIModelID       string   `json:"apiModelId,omitempty"`
	APIKey           string   `json:"apiKey,omitempty"`
	BaseURL          string   `json:"baseUrl,omitempty"`
	ModelTemperature *float64 `json:"modelTemperature,omitempty"`
	ModelMaxTokens   int      `json:"modelMaxTokens,omitempty"`
	User             string   `json:"user,omitempty"`

	// 为真时保存会删除已存储的密钥；不会持久化
	// ClearAPIKey makes SaveConfig drop the stored key. It is never persisted.
	ClearAPIKey bool `json:"clearApiKey,omitempty"`
}

// Redacted returns a copy with every secret field cleared.
func (s ProviderSettings) Redacted() ProviderSettings {
	s.APIKey = ""
	return s
}

// Normalized trims string fields and lower-cases the provider name.
func (s ProviderSettings) Normalized() ProviderSettings {
	s.APIProvider = strings.ToLower(strings.TrimSpace(s.APIProvider))
	s.APIModelID = strings.TrimSpace(s.APIModelID)
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.BaseURL = strings.TrimSpace(s.BaseURL)
	s.User = strings.TrimSpace(s.User)
	return s
}

// ConfigMeta 配置档摘要，供列表展示
// ConfigMeta summarizes one profile for listings
type ConfigMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	APIProvider string `json:"apiProvider,omitempty"`
}

type record struct {
	ID string `json:"id"`
	ProviderSettings
}

type document struct {
	CurrentAPIConfigName string            `json:"currentApiConfigName"`
	APIConfigs           map[string]record `json:"apiConfigs"`
	ModeAPIConfigs       map[string]string `json:"modeApiConfigs,omitempty"`
}
