package i18n

// ZhCNMessages 简体中文消息目录
// ZhCNMessages is the Simplified Chinese message catalog
var ZhCNMessages = map[string]string{
	"errors.no_workspace":       "请先打开一个项目文件夹",
	"errors.config_not_found":   "未找到配置 %q",
	"errors.config_duplicate":   "已存在名为 %q 的配置",
	"errors.config_last":        "无法删除唯一的配置",
	"errors.provider":           "%s 补全错误: %s",
	"errors.storage":            "保存 %q 失败: %s",
	"errors.no_active_task":     "当前没有活动任务",
	"errors.create_mcp_config":  "创建 MCP 配置文件失败: %s",
	"errors.invalid_message":    "无法识别的消息: %s",
	"errors.provider_not_ready": "当前配置未设置 API 提供方",

	"panel.chat":    "对话",
	"panel.session": "会话",

	"sidebar.mode":    "模式",
	"sidebar.profile": "配置",
	"sidebar.model":   "模型",
	"sidebar.tasks":   "任务",
	"sidebar.tokens":  "Token",

	"status.workspace": "工作区",
	"status.ready":     "就绪",
	"status.streaming": "生成中...",
	"status.aborted":   "任务已中止",
	"status.no_task":   "无任务",

	"input.placeholder": "描述一个任务...（Enter 发送）",

	"keys.tab":    "tab 切换模式",
	"keys.esc":    "esc 取消",
	"keys.ctrl_n": "ctrl+n 新任务",
	"keys.ctrl_c": "ctrl+c 退出",

	"repl.welcome":       "rookit 会话已就绪，输入 /help 查看命令。",
	"repl.help":          "命令: /new <文本>, /clear, /cancel, /mode <slug>, /profile <名称>, /profiles, /state, /mcp, /quit。以 { 开头的行将作为原始消息发送。",
	"repl.bye":           "再见",
	"repl.unknown":       "未知命令: %s",
	"repl.task_started":  "任务 %s 已启动（栈中 %d 个）",
	"repl.task_finished": "任务 %s 已完成",
	"repl.mode":          "模式: %s",
	"repl.profile":       "配置: %s",

	// 宿主
	"host.opened": "已打开 %s",
}
