package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"McpAgent/internal/auth"
	"McpAgent/internal/config"
	"McpAgent/internal/engine"
	"McpAgent/internal/llm"
	"McpAgent/internal/models"
	"McpAgent/internal/session/sessiontest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type finalGateway struct{}

func (finalGateway) Name() string { return "final" }

func (finalGateway) Complete(ctx context.Context, transcript []models.ConversationTurn, tools []models.ToolDescriptor) (*llm.Response, error) {
	return &llm.Response{Content: "echo: " + transcript[0].Content}, nil
}

func newTestServer(t *testing.T, authCfg config.AuthConfig) *httptest.Server {
	t.Helper()
	connector := sessiontest.NewFakeConnector(sessiontest.NewFakeSession("math", "add_numbers", "echo"))
	e := engine.New(finalGateway{}, connector, engine.Options{MaxIterations: 3})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})

	srv := httptest.NewServer(NewHandler(e, auth.NewAuthMiddleware(&authCfg)).Routes())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestServerWorkflow(t *testing.T) {
	srv := newTestServer(t, config.AuthConfig{})

	code, body := do(t, http.MethodPost, srv.URL+"/send", `{"message":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body["status"])

	code, body = do(t, http.MethodPost, srv.URL+"/servers/add", `{"name":"math","command":"python3","args":["math.py"]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", body["status"])

	code, _ = do(t, http.MethodPost, srv.URL+"/servers/add", `{"name":"math","command":"python3"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, body = do(t, http.MethodPost, srv.URL+"/servers/add", `{"name":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", body["status"])

	code, body = do(t, http.MethodPost, srv.URL+"/connect", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"math"}, body["servers"])
	assert.EqualValues(t, 2, body["total_tools"])

	code, body = do(t, http.MethodGet, srv.URL+"/status", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["connected"])
	assert.EqualValues(t, 1, body["total_servers"])
	assert.EqualValues(t, 2, body["tools_count"])

	code, body = do(t, http.MethodGet, srv.URL+"/tools", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["tools"], 2)

	code, body = do(t, http.MethodPost, srv.URL+"/send", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "echo: hello", body["response"])

	code, _ = do(t, http.MethodPost, srv.URL+"/send", `{"message":""}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, http.MethodGet, srv.URL+"/history", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["history"], 2)

	code, body = do(t, http.MethodGet, srv.URL+"/logs", ``)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["logs"])

	code, _ = do(t, http.MethodPost, srv.URL+"/logs/clear", ``)
	require.Equal(t, http.StatusOK, code)
	_, body = do(t, http.MethodGet, srv.URL+"/logs", ``)
	assert.Empty(t, body["logs"])

	code, _ = do(t, http.MethodPost, srv.URL+"/servers/disconnect", `{"name":"math"}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, http.MethodPost, srv.URL+"/servers/disconnect", `{"name":"math"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = do(t, http.MethodPost, srv.URL+"/servers/connect", `{"name":"math"}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["tools"])

	code, _ = do(t, http.MethodPost, srv.URL+"/servers/remove", `{"name":"math"}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = do(t, http.MethodPost, srv.URL+"/servers/remove", `{"name":"math"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, http.MethodGet, srv.URL+"/servers", ``)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body["servers"])
}

func TestServerAuth(t *testing.T) {
	srv := newTestServer(t, config.AuthConfig{Enabled: true, APIKeys: []string{"secret"}})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, body := do(t, http.MethodGet, srv.URL+"/status", ``)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "error", body["status"])

	code, _ = do(t, http.MethodGet, srv.URL+"/status?api_key=secret", ``)
	assert.Equal(t, http.StatusOK, code)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusCode(errors.Mark(errors.New("x"), models.ErrGateway)))
	assert.Equal(t, http.StatusGatewayTimeout, statusCode(errors.Wrap(context.DeadlineExceeded, "query")))
	assert.Equal(t, http.StatusServiceUnavailable, statusCode(engine.ErrClosed))
	assert.Equal(t, http.StatusServiceUnavailable, statusCode(errors.Mark(errors.New("no servers connected"), models.ErrNotConnected)))
	assert.Equal(t, http.StatusConflict, statusCode(errors.Mark(errors.New("x"), models.ErrDuplicateName)))
	assert.Equal(t, http.StatusInternalServerError, statusCode(errors.Mark(errors.New("x"), models.ErrLoopLimitExceeded)))
}
