// internal/toolserver/attach.go
package toolserver

import (
	"context"
	encodingjson "encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/actions"
)

// remoteAction adapts one remote tool to the Action interface. Execution is
// proxied over the server connection; the page is never touched directly.
type remoteAction struct {
	client *Client
	schema schemas.ActionSchema
}

func (a *remoteAction) Name() string                   { return a.schema.Name }
func (a *remoteAction) Description() string            { return a.schema.Description }
func (a *remoteAction) Schema() map[string]interface{} { return a.schema.Parameters }

// Validate only checks JSON well-formedness; the server owns the parameter
// schema and rejects anything deeper.
func (a *remoteAction) Validate(params encodingjson.RawMessage) error {
	if len(params) == 0 {
		return nil
	}
	var probe interface{}
	if err := encodingjson.Unmarshal(params, &probe); err != nil {
		return fmt.Errorf("%s: %w", actions.ErrCodeInvalidParameters, err)
	}
	return nil
}

func (a *remoteAction) Execute(ctx context.Context, _ *actions.ExecutionContext, params encodingjson.RawMessage) (*actions.Result, error) {
	success, message, output, err := a.client.CallTool(ctx, a.schema.Name, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", actions.ErrCodeTransportFailure, err)
	}
	return &actions.Result{
		Success:   success,
		Message:   message,
		Extracted: output,
	}, nil
}

// ToolServer is one attached server: its connection plus the action names it
// contributed to the registry.
type ToolServer struct {
	logger *zap.Logger
	client *Client
	names  []string
}

// Connect dials the server and transactionally registers its tool set. If
// discovery or registration fails nothing stays registered and the
// connection is closed.
func Connect(ctx context.Context, logger *zap.Logger, url string, registry *actions.Registry) (*ToolServer, error) {
	client, err := Dial(ctx, logger, url)
	if err != nil {
		return nil, err
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("listing tools from %s: %w", url, err)
	}

	acts := make([]actions.Action, 0, len(tools))
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		acts = append(acts, &remoteAction{client: client, schema: t})
		names = append(names, t.Name)
	}

	if err := registry.RegisterBatch(url, acts); err != nil {
		client.Close()
		return nil, fmt.Errorf("registering tools from %s: %w", url, err)
	}

	return &ToolServer{
		logger: logger.Named("toolserver"),
		client: client,
		names:  names,
	}, nil
}

// Names returns the action names this server contributed.
func (ts *ToolServer) Names() []string {
	out := make([]string, len(ts.names))
	copy(out, ts.names)
	return out
}

// Detach removes every contributed action and closes the connection. Safe to
// call after the connection already dropped.
func (ts *ToolServer) Detach(registry *actions.Registry) {
	registry.UnregisterAll(ts.names...)
	ts.client.Close()
	ts.logger.Info("Tool server detached.", zap.Int("tools_removed", len(ts.names)))
}
