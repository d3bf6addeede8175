package toolserver_test

import (
	"context"
	encodingjson "encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/actions"
	"github.com/xkilldash9x/pagepilot/internal/toolserver"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type wireRequest struct {
	ID     string                  `json:"id"`
	Type   string                  `json:"type"`
	Tool   string                  `json:"tool,omitempty"`
	Params encodingjson.RawMessage `json:"params,omitempty"`
}

type wireResponse struct {
	ID      string                 `json:"id"`
	Type    string                 `json:"type"`
	Error   string                 `json:"error,omitempty"`
	Tools   []schemas.ActionSchema `json:"tools,omitempty"`
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Output  string                 `json:"output,omitempty"`
}

// fakeServer serves the tool protocol over one websocket endpoint.
func fakeServer(t *testing.T, tools []schemas.ActionSchema, listErr string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req wireRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := wireResponse{ID: req.ID, Type: req.Type}
			switch req.Type {
			case "list_tools":
				if listErr != "" {
					resp.Error = listErr
				} else {
					resp.Tools = tools
				}
			case "call_tool":
				if req.Tool == "summarize" {
					resp.Success = true
					resp.Message = "summarized"
					resp.Output = "a short summary"
				} else {
					resp.Error = "unknown tool " + req.Tool
				}
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

var sampleTools = []schemas.ActionSchema{
	{Name: "summarize", Description: "summarize text", Parameters: map[string]interface{}{"type": "object"}},
	{Name: "translate", Description: "translate text"},
}

func TestConnectRegistersAndExecutesRemoteTools(t *testing.T) {
	srv := fakeServer(t, sampleTools, "")
	defer srv.Close()

	registry := actions.NewRegistry(zap.NewNop())
	ts, err := toolserver.Connect(context.Background(), zap.NewNop(), wsURL(srv), registry)
	require.NoError(t, err)
	defer ts.Detach(registry)

	assert.ElementsMatch(t, []string{"summarize", "translate"}, ts.Names())

	act, ok := registry.Get("summarize")
	require.True(t, ok)
	assert.Equal(t, "summarize text", act.Description())

	require.NoError(t, act.Validate(encodingjson.RawMessage(`{"text": "hello"}`)))
	assert.Error(t, act.Validate(encodingjson.RawMessage(`{not json`)))

	res, err := act.Execute(context.Background(), nil, encodingjson.RawMessage(`{"text": "hello"}`))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "a short summary", res.Extracted)
}

func TestConnectRollsBackOnNameConflict(t *testing.T) {
	srv := fakeServer(t, sampleTools, "")
	defer srv.Close()

	registry := actions.NewRegistry(zap.NewNop())
	require.NoError(t, registry.Register(&conflictAction{}))

	_, err := toolserver.Connect(context.Background(), zap.NewNop(), wsURL(srv), registry)
	require.Error(t, err)

	// The non-conflicting tool must not survive the failed attach.
	_, ok := registry.Get("translate")
	assert.False(t, ok)
	assert.Equal(t, 1, registry.Len())
}

func TestConnectFailsWhenListToolsErrors(t *testing.T) {
	srv := fakeServer(t, nil, "server on fire")
	defer srv.Close()

	registry := actions.NewRegistry(zap.NewNop())
	_, err := toolserver.Connect(context.Background(), zap.NewNop(), wsURL(srv), registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server on fire")
	assert.Equal(t, 0, registry.Len())
}

func TestDetachRemovesContributedTools(t *testing.T) {
	srv := fakeServer(t, sampleTools, "")
	defer srv.Close()

	registry := actions.NewRegistry(zap.NewNop())
	ts, err := toolserver.Connect(context.Background(), zap.NewNop(), wsURL(srv), registry)
	require.NoError(t, err)

	ts.Detach(registry)
	assert.Equal(t, 0, registry.Len())

	// Detaching again is harmless.
	ts.Detach(registry)
}

func TestConnectRefusedWhenServerDown(t *testing.T) {
	_, err := toolserver.Connect(context.Background(), zap.NewNop(), "ws://127.0.0.1:1/ws", actions.NewRegistry(zap.NewNop()))
	assert.Error(t, err)
}

type conflictAction struct{}

func (conflictAction) Name() string                           { return "summarize" }
func (conflictAction) Description() string                    { return "local summarize" }
func (conflictAction) Schema() map[string]interface{}         { return nil }
func (conflictAction) Validate(encodingjson.RawMessage) error { return nil }
func (conflictAction) Execute(context.Context, *actions.ExecutionContext, encodingjson.RawMessage) (*actions.Result, error) {
	return &actions.Result{Success: true}, nil
}
