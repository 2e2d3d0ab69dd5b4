package webview

import (
	"errors"
)

var (
	// ErrNoWorkspaceOpen 操作需要打开的项目目录
	// ErrNoWorkspaceOpen reports an operation that needs an open project folder
	ErrNoWorkspaceOpen = errors.New("webview: no workspace open")
	ErrUnknownMessage  = errors.New("webview: unknown message type")
	ErrAlreadyBound    = errors.New("webview: controller already bound")
	ErrDisposed        = errors.New("webview: controller disposed")
	ErrNoActiveTask    = errors.New("webview: no active task")
)

// Host 宿主环境能力接口
// Host is the narrow capability interface onto the host environment
type Host interface {
	// UserSetting 读取用户级设置（例如 "user"）
	// UserSetting reads a user-level setting such as "user"
	UserSetting(key string) (string, bool)
	WorkspaceRoot() (string, bool)
	ShowError(msg string)
	// Language returns the host UI locale, e.g. "pt-BR".
	Language() string
	OpenFile(path string) error
}

// Options 界面能力配置
// Options configures the capabilities of a UI surface
type Options struct {
	EnableScripts      bool
	LocalResourceRoots []string
}

// Surface 一个可接收出站消息的界面
// Surface is a UI that receives outbound messages
type Surface interface {
	SetOptions(Options)
	PostMessage(OutboundMessage) error
}
