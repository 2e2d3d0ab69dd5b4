package config

const (
	DefaultProviderTimeoutMS  = 120000
	DefaultProviderMaxRetries = 2
	DefaultProviderName       = "openai"
	DefaultProviderBaseURL    = "https://api.openai.com/v1"
	DefaultProviderModel      = "gpt-4o-mini"

	DefaultContextTokenLimit = 128000
	DefaultInboxSize         = 64

	DefaultRenderContext = "sidebar"
	DefaultURIScheme     = "vscode"
	DefaultStateBackend  = "sqlite"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultBaseDir       = "~/.rookit"
	DefaultModesFile     = ".roomodes"
)
