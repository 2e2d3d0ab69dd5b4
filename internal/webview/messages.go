package webview

import (
	"encoding/json"
	"fmt"
	"strings"

	"rookit/internal/chat"
	"rookit/internal/contextproxy"
	"rookit/internal/settings"
)

// InboundMessage 界面发来的消息；封闭的联合类型，只能由本包的类型实现
// InboundMessage is a message from the UI. It is a closed union: only types in this package implement it.
type InboundMessage interface {
	inbound()
	// Kind returns the wire "type" tag.
	Kind() string
}

type (
	WebviewDidLaunch struct{}
	NewTask          struct{ Text string }
	ClearTask        struct{}
	CancelTask       struct{}
	AskResponse      struct{ Text string }
	// SwitchMode is the "mode" message.
	SwitchMode               struct{ Mode string }
	LoadAPIConfiguration     struct{ Name string }
	LoadAPIConfigurationByID struct{ ID string }
	UpsertAPIConfiguration   struct {
		Name   string
		Config settings.ProviderSettings
	}
	SaveAPIConfiguration struct {
		Name   string
		Config settings.ProviderSettings
	}
	RenameAPIConfiguration struct {
		OldName string
		NewName string
		Config  *settings.ProviderSettings
	}
	DeleteAPIConfiguration struct{ Name string }
	UpdatePrompt           struct {
		Mode   string
		Prompt json.RawMessage
	}
	CustomInstructions     struct{ Text string }
	OpenProjectMcpSettings struct{}
	ResetState             struct{}

	// SetBool 布尔设置，如 soundEnabled；Key 即消息类型
	// SetBool is a boolean setting such as soundEnabled; Key is the message type
	SetBool struct {
		Key   string
		Value bool
	}
	SetNumber struct {
		Key   string
		Value float64
	}
	SetString struct {
		Key   string
		Value string
	}
)

func (WebviewDidLaunch) inbound()         {}
func (NewTask) inbound()                  {}
func (ClearTask) inbound()                {}
func (CancelTask) inbound()               {}
func (AskResponse) inbound()              {}
func (SwitchMode) inbound()               {}
func (LoadAPIConfiguration) inbound()     {}
func (LoadAPIConfigurationByID) inbound() {}
func (UpsertAPIConfiguration) inbound()   {}
func (SaveAPIConfiguration) inbound()     {}
func (RenameAPIConfiguration) inbound()   {}
func (DeleteAPIConfiguration) inbound()   {}
func (UpdatePrompt) inbound()             {}
func (CustomInstructions) inbound()       {}
func (OpenProjectMcpSettings) inbound()   {}
func (ResetState) inbound()               {}
func (SetBool) inbound()                  {}
func (SetNumber) inbound()                {}
func (SetString) inbound()                {}

func (WebviewDidLaunch) Kind() string         { return "webviewDidLaunch" }
func (NewTask) Kind() string                  { return "newTask" }
func (ClearTask) Kind() string                { return "clearTask" }
func (CancelTask) Kind() string               { return "cancelTask" }
func (AskResponse) Kind() string              { return "askResponse" }
func (SwitchMode) Kind() string               { return "mode" }
func (LoadAPIConfiguration) Kind() string     { return "loadApiConfiguration" }
func (LoadAPIConfigurationByID) Kind() string { return "loadApiConfigurationById" }
func (UpsertAPIConfiguration) Kind() string   { return "upsertApiConfiguration" }
func (SaveAPIConfiguration) Kind() string     { return "saveApiConfiguration" }
func (RenameAPIConfiguration) Kind() string   { return "renameApiConfiguration" }
func (DeleteAPIConfiguration) Kind() string   { return "deleteApiConfiguration" }
func (UpdatePrompt) Kind() string             { return "updatePrompt" }
func (CustomInstructions) Kind() string       { return "customInstructions" }
func (OpenProjectMcpSettings) Kind() string   { return "openProjectMcpSettings" }
func (ResetState) Kind() string               { return "resetState" }
func (m SetBool) Kind() string                { return m.Key }
func (m SetNumber) Kind() string              { return m.Key }
func (m SetString) Kind() string              { return m.Key }

// 以 {bool} / {value} / {text} 携带的设置消息
// Setting messages carried as {bool}, {value} or {text}
var (
	boolSettings = map[string]bool{
		contextproxy.KeySoundEnabled:            true,
		contextproxy.KeyTTSEnabled:              true,
		contextproxy.KeyDiffEnabled:             true,
		contextproxy.KeyBrowserToolEnabled:      true,
		contextproxy.KeyShowRooIgnoredFiles:     true,
		contextproxy.KeyAlwaysApproveResubmit:   true,
		contextproxy.KeyAlwaysAllowReadOnly:     true,
		contextproxy.KeyAlwaysAllowWrite:        true,
		contextproxy.KeyAlwaysAllowExecute:      true,
		contextproxy.KeyAlwaysAllowBrowser:      true,
		contextproxy.KeyAlwaysAllowMcp:          true,
		contextproxy.KeyEnableCheckpoints:       true,
		contextproxy.KeyMcpEnabled:              true,
		contextproxy.KeyEnableMcpServerCreation: true,
	}
	numberSettings = map[string]bool{
		contextproxy.KeyWriteDelayMs:        true,
		contextproxy.KeyRequestDelaySeconds: true,
		contextproxy.KeyMaxWorkspaceFiles:   true,
		contextproxy.KeyMaxOpenTabsContext:  true,
		contextproxy.KeyMaxReadFileLine:     true,
		contextproxy.KeyFuzzyMatchThreshold: true,
		contextproxy.KeyTTSSpeed:            true,
		contextproxy.KeySoundVolume:         true,
	}
	stringSettings = map[string]bool{
		contextproxy.KeyBrowserViewportSize: true,
		contextproxy.KeyTelemetrySetting:    true,
		contextproxy.KeyLanguage:            true,
	}
)

type wireInbound struct {
	Type   string   `json:"type"`
	Text   string   `json:"text"`
	Bool   *bool    `json:"bool"`
	Value  *float64 `json:"value"`
	Values struct {
		OldName string `json:"oldName"`
		NewName string `json:"newName"`
	} `json:"values"`
	APIConfiguration *settings.ProviderSettings `json:"apiConfiguration"`
	PromptMode       string                     `json:"promptMode"`
	CustomPrompt     json.RawMessage            `json:"customPrompt"`
}

// DecodeInbound 解析 {type: ...} 形式的入站消息
// DecodeInbound parses a {type: ...} inbound message
func DecodeInbound(data []byte) (InboundMessage, error) {
	var w wireInbound
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode inbound message: %w", err)
	}
	switch w.Type {
	case "webviewDidLaunch":
		return WebviewDidLaunch{}, nil
	case "newTask":
		return NewTask{Text: w.Text}, nil
	case "clearTask":
		return ClearTask{}, nil
	case "cancelTask":
		return CancelTask{}, nil
	case "askResponse":
		return AskResponse{Text: w.Text}, nil
	case "mode":
		return SwitchMode{Mode: w.Text}, nil
	case "loadApiConfiguration":
		return LoadAPIConfiguration{Name: w.Text}, nil
	case "loadApiConfigurationById":
		return LoadAPIConfigurationByID{ID: w.Text}, nil
	case "upsertApiConfiguration", "saveApiConfiguration":
		if w.APIConfiguration == nil {
			return nil, fmt.Errorf("%s: apiConfiguration is required", w.Type)
		}
		if w.Type == "saveApiConfiguration" {
			return SaveAPIConfiguration{Name: w.Text, Config: *w.APIConfiguration}, nil
		}
		return UpsertAPIConfiguration{Name: w.Text, Config: *w.APIConfiguration}, nil
	case "renameApiConfiguration":
		return RenameAPIConfiguration{OldName: w.Values.OldName, NewName: w.Values.NewName, Config: w.APIConfiguration}, nil
	case "deleteApiConfiguration":
		return DeleteAPIConfiguration{Name: w.Text}, nil
	case "updatePrompt":
		return UpdatePrompt{Mode: w.PromptMode, Prompt: w.CustomPrompt}, nil
	case "customInstructions":
		return CustomInstructions{Text: w.Text}, nil
	case "openProjectMcpSettings":
		return OpenProjectMcpSettings{}, nil
	case "resetState":
		return ResetState{}, nil
	}
	switch {
	case boolSettings[w.Type]:
		return SetBool{Key: w.Type, Value: w.Bool != nil && *w.Bool}, nil
	case numberSettings[w.Type]:
		if w.Value == nil {
			return nil, fmt.Errorf("%s: value is required", w.Type)
		}
		return SetNumber{Key: w.Type, Value: *w.Value}, nil
	case stringSettings[w.Type]:
		return SetString{Key: w.Type, Value: strings.TrimSpace(w.Text)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, w.Type)
}

// 出站消息类型 / Outbound message types
const (
	OutState          = "state"
	OutPartialMessage = "partialMessage"
	OutListAPIConfig  = "listApiConfig"
	OutError          = "error"
)

// OutboundMessage 发往界面的消息
// OutboundMessage is a message sent to the UI
type OutboundMessage struct {
	Type           string                `json:"type"`
	State          State                 `json:"state,omitempty"`
	PartialMessage *chat.UIMessage       `json:"partialMessage,omitempty"`
	ListAPIConfig  []settings.ConfigMeta `json:"listApiConfig,omitempty"`
	// Error 错误代码，例如 "no_workspace"；Text 为本地化文本
	// Error is an error code such as "no_workspace"; Text is the localized text
	Error  string `json:"error,omitempty"`
	Text   string `json:"text,omitempty"`
	Action string `json:"action,omitempty"`
}
