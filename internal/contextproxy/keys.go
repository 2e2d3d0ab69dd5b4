package contextproxy

import (
	"encoding/json"
	"sort"
)

// 全局状态键 / Global state keys
const (
	KeyMode                    = "mode"
	KeyCurrentAPIConfigName    = "currentApiConfigName"
	KeyCustomModePrompts       = "customModePrompts"
	KeyCustomInstructions      = "customInstructions"
	KeyDiffEnabled             = "diffEnabled"
	KeyWriteDelayMs            = "writeDelayMs"
	KeyRequestDelaySeconds     = "requestDelaySeconds"
	KeyAlwaysApproveResubmit   = "alwaysApproveResubmit"
	KeyAlwaysAllowReadOnly     = "alwaysAllowReadOnly"
	KeyAlwaysAllowWrite        = "alwaysAllowWrite"
	KeyAlwaysAllowExecute      = "alwaysAllowExecute"
	KeyAlwaysAllowBrowser      = "alwaysAllowBrowser"
	KeyAlwaysAllowMcp          = "alwaysAllowMcp"
	KeyBrowserToolEnabled      = "browserToolEnabled"
	KeyBrowserViewportSize     = "browserViewportSize"
	KeyShowRooIgnoredFiles     = "showRooIgnoredFiles"
	KeySoundEnabled            = "soundEnabled"
	KeySoundVolume             = "soundVolume"
	KeyTTSEnabled              = "ttsEnabled"
	KeyTTSSpeed                = "ttsSpeed"
	KeyEnableCheckpoints       = "enableCheckpoints"
	KeyFuzzyMatchThreshold     = "fuzzyMatchThreshold"
	KeyMcpEnabled              = "mcpEnabled"
	KeyEnableMcpServerCreation = "enableMcpServerCreation"
	KeyMaxOpenTabsContext      = "maxOpenTabsContext"
	KeyMaxWorkspaceFiles       = "maxWorkspaceFiles"
	KeyMaxReadFileLine         = "maxReadFileLine"
	KeyExperiments             = "experiments"
	KeyTelemetrySetting        = "telemetrySetting"
	KeyLanguage                = "language"

	// 当前激活配置档的镜像 / Mirror of the active configuration profile
	KeyAPIProvider      = "apiProvider"
	KeyAPIModelID       = "apiModelId"
	KeyBaseURL          = "baseUrl"
	KeyModelTemperature = "modelTemperature"
	KeyModelMaxTokens   = "modelMaxTokens"
	KeyUser             = "user"
)

// 密钥键 / Secret keys
const (
	SecretAPIKey = "apiKey"
)

var defaults = map[string]json.RawMessage{
	KeyMode:                    raw(`"code"`),
	KeyCurrentAPIConfigName:    raw(`"default"`),
	KeyCustomModePrompts:       raw(`{}`),
	KeyCustomInstructions:      raw(`""`),
	KeyDiffEnabled:             raw(`true`),
	KeyWriteDelayMs:            raw(`1000`),
	KeyRequestDelaySeconds:     raw(`10`),
	KeyAlwaysApproveResubmit:   raw(`false`),
	KeyAlwaysAllowReadOnly:     raw(`false`),
	KeyAlwaysAllowWrite:        raw(`false`),
	KeyAlwaysAllowExecute:      raw(`false`),
	KeyAlwaysAllowBrowser:      raw(`false`),
	KeyAlwaysAllowMcp:          raw(`false`),
	KeyBrowserToolEnabled:      raw(`true`),
	KeyBrowserViewportSize:     raw(`"900x600"`),
	KeyShowRooIgnoredFiles:     raw(`true`),
	KeySoundEnabled:            raw(`false`),
	KeySoundVolume:             raw(`0.5`),
	KeyTTSEnabled:              raw(`false`),
	KeyTTSSpeed:                raw(`1.0`),
	KeyEnableCheckpoints:       raw(`true`),
	KeyFuzzyMatchThreshold:     raw(`1.0`),
	KeyMcpEnabled:              raw(`true`),
	KeyEnableMcpServerCreation: raw(`true`),
	KeyMaxOpenTabsContext:      raw(`20`),
	KeyMaxWorkspaceFiles:       raw(`200`),
	KeyMaxReadFileLine:         raw(`500`),
	KeyExperiments:             raw(`{}`),
	KeyTelemetrySetting:        raw(`"unset"`),
	KeyLanguage:                raw(`""`),

	KeyAPIProvider:      raw(`""`),
	KeyAPIModelID:       raw(`""`),
	KeyBaseURL:          raw(`""`),
	KeyModelTemperature: raw(`null`),
	KeyModelMaxTokens:   raw(`0`),
	KeyUser:             raw(`""`),
}

var secretKeys = map[string]struct{}{
	SecretAPIKey: {},
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

// GlobalKeys 返回所有带默认值的全局状态键（排序）
// GlobalKeys returns every global-state key that carries a default, sorted
func GlobalKeys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SecretKeys returns the keys routed to the secret store, sorted.
func SecretKeys() []string {
	keys := make([]string, 0, len(secretKeys))
	for k := range secretKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSecretKey reports whether key is stored in the secret store.
func IsSecretKey(key string) bool {
	_, ok := secretKeys[key]
	return ok
}

// Default returns the documented default for key and whether one exists.
func Default(key string) (json.RawMessage, bool) {
	v, ok := defaults[key]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), v...), true
}
