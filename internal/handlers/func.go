package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"McpAgent/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolHandler 定义工具处理器
type ToolHandler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// Tool 工具定义及其处理器
type Tool struct {
	Definition *mcp.Tool
	Handler    ToolHandler
}

// ToolHandlerRegistry 工具处理器注册表。
// Tools 按注册顺序返回；经 MCP 服务器 tools/list 暴露时按名称排序。
type ToolHandlerRegistry struct {
	tools  []Tool
	byName map[string]int
}

// NewToolHandlerRegistry 创建新的工具处理器注册表
func NewToolHandlerRegistry(weather *WeatherClient) *ToolHandlerRegistry {
	registry := &ToolHandlerRegistry{
		byName: make(map[string]int),
	}

	registry.RegisterBuiltinHandlers(weather)

	return registry
}

// RegisterHandler 注册处理器，同名工具会被替换
func (r *ToolHandlerRegistry) RegisterHandler(def *mcp.Tool, handler ToolHandler) {
	tool := Tool{Definition: def, Handler: handler}
	if idx, exists := r.byName[def.Name]; exists {
		r.tools[idx] = tool
		return
	}
	r.byName[def.Name] = len(r.tools)
	r.tools = append(r.tools, tool)
}

// GetHandler 获取处理器
func (r *ToolHandlerRegistry) GetHandler(name string) (ToolHandler, bool) {
	idx, exists := r.byName[name]
	if !exists {
		return nil, false
	}
	return r.tools[idx].Handler, true
}

// Tools 按注册顺序返回所有已注册的工具
func (r *ToolHandlerRegistry) Tools() []Tool {
	return append([]Tool(nil), r.tools...)
}

// NewServer 创建 MCP 服务器并注册全部工具
func (r *ToolHandlerRegistry) NewServer(name, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	for _, tool := range r.tools {
		handler := tool.Handler
		toolName := tool.Definition.Name

		toolHandler := func(ctx context.Context, session *mcp.ServerSession, params *mcp.CallToolParamsFor[map[string]any]) (*mcp.CallToolResultFor[any], error) {
			result, err := handler(ctx, params.Arguments)
			if err != nil {
				logger.Error("Error executing tool %s: %v", toolName, err)
				result = TextResult(fmt.Sprintf("Error: %s", err.Error()), true)
			}
			return &mcp.CallToolResultFor[any]{
				Content: result.Content,
				IsError: result.IsError,
			}, nil
		}

		mcp.AddTool(server, tool.Definition, toolHandler)
		logger.Debug("Added tool: %s", toolName)
	}

	return server
}

// RegisterBuiltinHandlers 注册内置处理器
func (r *ToolHandlerRegistry) RegisterBuiltinHandlers(weather *WeatherClient) {
	r.RegisterHandler(&mcp.Tool{
		Name:        "echo",
		Description: "Echo back the input message",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"message": {Type: "string", Description: "Message to echo back"},
		}, "message"),
	}, func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
		message, _ := args["message"].(string)
		return TextResult(fmt.Sprintf("Echo: %s", message), false), nil
	})

	r.RegisterHandler(&mcp.Tool{
		Name:        "add_numbers",
		Description: "Add two numbers together",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"a": {Type: "number", Description: "First number"},
			"b": {Type: "number", Description: "Second number"},
		}, "a", "b"),
	}, func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
		a, err := NumberArg(args, "a")
		if err != nil {
			return nil, err
		}
		b, err := NumberArg(args, "b")
		if err != nil {
			return nil, err
		}
		return TextResult("Result: "+FormatNumber(a+b), false), nil
	})

	if weather == nil {
		return
	}

	r.RegisterHandler(&mcp.Tool{
		Name:        "get_weather_forecast",
		Description: "Get weather forecast for a location using latitude and longitude",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"latitude":  {Type: "number", Description: "Latitude of the location"},
			"longitude": {Type: "number", Description: "Longitude of the location"},
		}, "latitude", "longitude"),
	}, func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
		lat, err := NumberArg(args, "latitude")
		if err != nil {
			return nil, err
		}
		lon, err := NumberArg(args, "longitude")
		if err != nil {
			return nil, err
		}
		text, err := weather.Forecast(ctx, lat, lon)
		if err != nil {
			return nil, err
		}
		return TextResult(text, false), nil
	})

	r.RegisterHandler(&mcp.Tool{
		Name:        "get_weather_alerts",
		Description: "Get active weather alerts for a US state",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"state": {Type: "string", Description: "Two-letter US state code (e.g., CA, NY)"},
		}, "state"),
	}, func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
		state, _ := args["state"].(string)
		state = strings.ToUpper(strings.TrimSpace(state))
		if len(state) != 2 {
			return nil, errors.Newf("invalid state code %q", state)
		}
		text, err := weather.Alerts(ctx, state)
		if err != nil {
			return nil, err
		}
		return TextResult(text, false), nil
	})
}

func objectSchema(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// TextResult 创建文本结果
func TextResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
		IsError: isError,
	}
}

// NumberArg 读取数值参数，兼容数字字符串
func NumberArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, errors.Newf("missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errors.Newf("argument %q is not a number: %q", key, n)
		}
		return f, nil
	default:
		return 0, errors.Newf("argument %q is not a number: %v", key, v)
	}
}

// FormatNumber 整数值不带小数部分
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
