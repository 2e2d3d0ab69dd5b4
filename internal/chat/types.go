package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the conversation sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UI message kinds.
const (
	TypeSay = "say"
	TypeAsk = "ask"

	SayText          = "text"
	SayError         = "error"
	SayAPIReqStarted = "api_req_started"
	SayCompletion    = "completion_result"
	SayUserFeedback  = "user_feedback"

	AskFollowup = "followup"
)

// UIMessage 界面可见的任务消息，字段名与前端协议兼容
// UIMessage is a task message as the UI renders it; field names match the wire protocol
type UIMessage struct {
	Ts      int64  `json:"ts"`
	Type    string `json:"type"`
	Say     string `json:"say,omitempty"`
	Ask     string `json:"ask,omitempty"`
	Text    string `json:"text,omitempty"`
	Partial bool   `json:"partial,omitempty"`
}

// NowMillis returns the current time in Unix milliseconds, the timestamp unit of UIMessage.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// CloneMessages returns a copy of msgs that shares no backing array.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// CloneUIMessages returns a copy of msgs that shares no backing array.
func CloneUIMessages(msgs []UIMessage) []UIMessage {
	if msgs == nil {
		return nil
	}
	out := make([]UIMessage, len(msgs))
	copy(out, msgs)
	return out
}
