package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"McpAgent/internal/llm"
	"McpAgent/internal/logger"
	"McpAgent/internal/manager"
	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
)

// DefaultMaxIterations 单次查询最多的 LLM 往返次数
const DefaultMaxIterations = 10

// RecordFunc 活动日志回调
type RecordFunc func(logType models.LogType, message string, data any)

// Option 调度器选项
type Option func(*Dispatcher)

// WithMaxIterations 设置单次查询的迭代上限
func WithMaxIterations(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxIterations = n
		}
	}
}

// WithRecorder 设置活动日志回调
func WithRecorder(record RecordFunc) Option {
	return func(d *Dispatcher) {
		if record != nil {
			d.record = record
		}
	}
}

// Dispatcher 驱动 LLM 与工具服务器之间的调用循环
type Dispatcher struct {
	gateway       llm.Gateway
	router        manager.ToolRouter
	maxIterations int
	record        RecordFunc
}

// NewDispatcher 创建调度器
func NewDispatcher(gateway llm.Gateway, router manager.ToolRouter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gateway:       gateway,
		router:        router,
		maxIterations: DefaultMaxIterations,
		record:        func(models.LogType, string, any) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run 执行一次查询。工具目录在开始时固定，整个查询期间不变。
func (d *Dispatcher) Run(ctx context.Context, query string) (*models.QueryResult, error) {
	catalog := d.router.Catalog()
	tools := catalog.FlatToolList()

	result := &models.QueryResult{
		Transcript: []models.ConversationTurn{{Role: models.RoleUser, Content: query}},
	}

	for result.Iterations < d.maxIterations {
		result.Iterations++

		d.record(models.LogLLM, fmt.Sprintf("Request to %s (iteration %d)", d.gateway.Name(), result.Iterations), map[string]any{
			"messages": len(result.Transcript),
			"tools":    catalog.Names(),
		})

		resp, err := d.gateway.Complete(ctx, result.Transcript, tools)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, errors.WithSecondaryError(ctxErr, err)
			}
			return result, errors.Mark(errors.WithMessage(err, "llm request failed"), models.ErrGateway)
		}

		d.record(models.LogLLM, fmt.Sprintf("Response from %s", d.gateway.Name()), map[string]any{
			"content":       resp.Content,
			"tool_calls":    resp.ToolCalls,
			"finish_reason": resp.FinishReason,
		})

		if len(resp.ToolCalls) == 0 {
			result.Transcript = append(result.Transcript, models.ConversationTurn{
				Role:    models.RoleAssistant,
				Content: resp.Content,
			})
			result.Content = resp.Content
			return result, nil
		}

		result.Transcript = append(result.Transcript, models.ConversationTurn{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			turn, record, err := d.dispatch(ctx, catalog, call)
			if err != nil {
				return result, err
			}
			result.Transcript = append(result.Transcript, turn)
			if record != nil {
				result.ToolInvocations = append(result.ToolInvocations, *record)
			}
		}
	}

	logger.Warn("Query stopped after %d iterations", d.maxIterations)
	return result, errors.Mark(
		errors.Newf("query exceeded %d iterations without a final answer", d.maxIterations),
		models.ErrLoopLimitExceeded,
	)
}

// dispatch 执行单个工具调用，返回工具轮次和调用记录。
// 只有上下文取消或超时会返回 error，其余失败都写入工具轮次。
func (d *Dispatcher) dispatch(ctx context.Context, catalog *manager.Catalog, call models.ToolCall) (models.ConversationTurn, *models.ToolInvocationRecord, error) {
	turn := models.ConversationTurn{
		Role:       models.RoleTool,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}

	server, err := catalog.ResolveOwner(call.Name)
	if err != nil {
		turn.Content = fmt.Sprintf("Tool %s not found in any connected server", call.Name)
		d.record(models.LogError, turn.Content, map[string]any{"tool_call_id": call.ID})
		return turn, nil, nil
	}

	args, err := llm.ParseArguments(call.Arguments)
	if err != nil {
		turn.Content = fmt.Sprintf("Error: %v", err)
		d.record(models.LogError, fmt.Sprintf("Invalid arguments for %s", call.Name), map[string]any{
			"tool_call_id": call.ID,
			"arguments":    call.Arguments,
			"error":        err.Error(),
		})
		return turn, nil, nil
	}

	d.record(models.LogMCPClient, fmt.Sprintf("Sending tool request to %s: %s", server, call.Name), map[string]any{
		"tool":      call.Name,
		"arguments": args,
		"server":    server,
	})

	record := &models.ToolInvocationRecord{
		ToolName:  call.Name,
		Arguments: args,
		Server:    server,
	}

	start := time.Now()
	res, err := d.callTool(ctx, server, call.Name, args)
	record.Duration = time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return turn, nil, errors.WithSecondaryError(ctxErr, err)
		}
		turn.Content = fmt.Sprintf("Tool call failed: %v", err)
		record.ResultSummary = turn.Content
		record.IsError = true
		record.Err = errors.Mark(err, models.ErrToolExecution)
		d.record(models.LogError, fmt.Sprintf("Tool %s on %s failed", call.Name, server), map[string]any{"error": err.Error()})
		return turn, record, nil
	}

	turn.Content = res.Content
	if res.IsError {
		if !strings.HasPrefix(res.Content, "Error:") {
			turn.Content = "Error: " + res.Content
		}
		record.IsError = true
		record.Err = errors.Mark(errors.Newf("tool %s on %s: %s", call.Name, server, res.Content), models.ErrToolExecution)
	}
	record.ResultSummary = turn.Content

	d.record(models.LogMCPServer, fmt.Sprintf("%s tool execution complete: %s", server, call.Name), map[string]any{
		"tool":     call.Name,
		"server":   server,
		"result":   res.Content,
		"is_error": res.IsError,
	})
	return turn, record, nil
}

func (d *Dispatcher) callTool(ctx context.Context, server, name string, args map[string]any) (*models.ToolResult, error) {
	sess, err := d.router.Session(server)
	if err != nil {
		return nil, err
	}
	return sess.CallTool(ctx, name, args)
}
