package cli

// Options 根命令，子命令由 go-flags 按结构体标签解析
type Options struct {
	Config   string `short:"f" long:"config" description:"config YAML path"`
	LogLevel string `short:"l" long:"log-level" description:"override logging level (debug|info|warn|error)"`

	Serve ServeCmd `command:"serve" description:"Start the HTTP API"`
	Chat  ChatCmd  `command:"chat" description:"Interactive chat with connected tool servers"`
	Tools ToolsCmd `command:"tools" description:"Connect to all servers and list the aggregated tools"`
}

// ServeCmd 启动 HTTP 接口
type ServeCmd struct {
	Addr    string `short:"a" long:"addr" description:"listen address, defaults to server.host:server.port"`
	Connect bool   `long:"connect" description:"connect to all configured servers at startup"`
}

// ChatCmd 交互式对话
type ChatCmd struct {
	Query string `short:"q" long:"query" description:"send a single query and exit"`
}

// ToolsCmd 列出工具
type ToolsCmd struct {
	JSON bool `long:"json" description:"print the catalog as JSON"`
}
