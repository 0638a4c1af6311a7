// toolserver 通过 stdio 提供 echo、add_numbers 和天气工具的 MCP 服务器
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"McpAgent/internal/handlers"
	"McpAgent/internal/logger"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	weatherURL = flag.String("weather-url", handlers.DefaultWeatherBaseURL, "weather API base URL")
	noWeather  = flag.Bool("no-weather", false, "do not register weather tools")
	sseAddr    = flag.String("sse", "", "serve over SSE on this address instead of stdio")
)

func main() {
	flag.Parse()

	// stdout 用于协议帧，日志只写 stderr
	logger.SetOutput(os.Stderr)

	var weather *handlers.WeatherClient
	if !*noWeather {
		weather = handlers.NewWeatherClient(*weatherURL, &http.Client{Timeout: 30 * time.Second})
	}
	server := handlers.NewToolHandlerRegistry(weather).NewServer("mcp-agent-toolserver", "1.0.0")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *sseAddr != "" {
		serveSSE(ctx, server, *sseAddr)
		return
	}

	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		logger.Fatal("Tool server stopped: %v", err)
	}
}

// serveSSE 每个 SSE 连接共用同一个 mcp.Server
func serveSSE(ctx context.Context, server *mcp.Server, addr string) {
	handler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		logger.Debug("SSE session requested: %s %s", r.Method, r.URL.String())
		return server
	})
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Tool server listening for SSE on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Tool server stopped: %v", err)
	}
}
