package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// Errors surfaced to the host
	"errors.no_workspace":       "Please open a project folder first",
	"errors.config_not_found":   "Configuration profile %q not found",
	"errors.config_duplicate":   "A configuration profile named %q already exists",
	"errors.config_last":        "Cannot delete the only remaining configuration profile",
	"errors.provider":           "%s completion error: %s",
	"errors.storage":            "Failed to persist %q: %s",
	"errors.no_active_task":     "There is no active task",
	"errors.create_mcp_config":  "Failed to create MCP settings file: %s",
	"errors.invalid_message":    "Unrecognized message: %s",
	"errors.provider_not_ready": "No API provider is configured for the current profile",

	// UI (TUI) panel titles
	"panel.chat":    "Chat",
	"panel.session": "Session",

	// UI sidebar
	"sidebar.mode":    "Mode",
	"sidebar.profile": "Profile",
	"sidebar.model":   "Model",
	"sidebar.tasks":   "Tasks",
	"sidebar.tokens":  "Tokens",

	// UI status bar
	"status.workspace": "Workspace",
	"status.ready":     "Ready",
	"status.streaming": "Streaming...",
	"status.aborted":   "Task aborted",
	"status.no_task":   "No task",

	// UI input
	"input.placeholder": "Describe a task... (Enter to send)",

	// UI keybindings
	"keys.tab":    "tab mode",
	"keys.esc":    "esc cancel",
	"keys.ctrl_n": "ctrl+n new task",
	"keys.ctrl_c": "ctrl+c quit",

	// REPL
	"repl.welcome":       "rookit session ready. Type /help for commands.",
	"repl.help":          "Commands: /new <text>, /clear, /cancel, /mode <slug>, /profile <name>, /profiles, /state, /mcp, /quit. Lines starting with { are sent as raw messages.",
	"repl.bye":           "bye",
	"repl.unknown":       "Unknown command: %s",
	"repl.task_started":  "task %s started (%d on stack)",
	"repl.task_finished": "task %s finished",
	"repl.mode":          "mode: %s",
	"repl.profile":       "profile: %s",

	// Host
	"host.opened": "Opened %s",
}
