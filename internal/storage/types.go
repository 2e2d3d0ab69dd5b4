package storage

// HistoryItem 任务历史条目，字段名与前端协议兼容
// HistoryItem is one task-history entry; field names match the wire protocol
type HistoryItem struct {
	ID        string `json:"id"`
	Number    int    `json:"number"`
	Ts        int64  `json:"ts"`
	Task      string `json:"task"`
	TokensIn  int64  `json:"tokensIn"`
	TokensOut int64  `json:"tokensOut"`
	Mode      string `json:"mode,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	ParentID  string `json:"parentTaskId,omitempty"`
	RootID    string `json:"rootTaskId,omitempty"`
}
