package contextmgr

import (
	"rookit/internal/chat"
)

// TruncateHalf 移除首条消息之后一半的历史（按偶数条取整，保持 user/assistant 交替）
// TruncateHalf drops half of the history after the first message, rounded down to an
// even count so user/assistant turns stay paired. The first message (the task) is kept.
func TruncateHalf(messages []chat.Message) []chat.Message {
	if len(messages) <= 2 {
		return chat.CloneMessages(messages)
	}
	remove := (len(messages) - 1) / 2
	remove -= remove % 2
	if remove == 0 {
		return chat.CloneMessages(messages)
	}
	out := make([]chat.Message, 0, len(messages)-remove)
	out = append(out, messages[0])
	out = append(out, messages[1+remove:]...)
	return out
}

// FitWindow 反复截半直到 system+history 的估算值不超过 limit 的 80%，或无法再截
// FitWindow truncates repeatedly until the estimated size of system plus history is at most
// 80% of limit, or nothing more can be removed. The bool result reports whether anything was cut.
func FitWindow(tok *Tokenizer, system string, messages []chat.Message, limit int) ([]chat.Message, bool) {
	if tok == nil {
		tok = DefaultTokenizer()
	}
	if limit <= 0 {
		return messages, false
	}
	budget := limit * 8 / 10
	out := messages
	cut := false
	for tok.CountRequest(system, out) > budget {
		next := TruncateHalf(out)
		if len(next) == len(out) {
			break
		}
		out = next
		cut = true
	}
	return out, cut
}
