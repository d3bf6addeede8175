package agent_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/agent"
)

type recordingLLM struct {
	lastReq  schemas.GenerationRequest
	response string
}

func (r *recordingLLM) GenerateResponse(_ context.Context, req schemas.GenerationRequest) (string, error) {
	r.lastReq = req
	return r.response, nil
}

func decideWith(t *testing.T, response string) (schemas.AgentDecision, *recordingLLM, error) {
	t.Helper()
	llm := &recordingLLM{response: response}
	m := agent.NewMind(zap.NewNop(), llm)
	d, err := m.Decide(
		context.Background(),
		"log in as admin",
		"on the login page",
		[]schemas.AgentStep{{Index: 0, Decision: schemas.AgentDecision{Action: "goToUrl"}, Success: true, Message: "ok"}},
		&schemas.Snapshot{URL: "https://x.test/", Title: "Login", Serialized: `[0-7] <input name="user">`},
		[]schemas.ActionSchema{{Name: "fill", Description: "fill a field"}},
	)
	return d, llm, err
}

func TestDecideParsesFencedJSON(t *testing.T) {
	d, llm, err := decideWith(t, "Here is my decision:\n```json\n{\"reasoning\": \"fill the user field\", \"memory\": \"m\", \"action\": \"fill\", \"params\": {\"element\": \"0-7\", \"value\": \"admin\"}}\n```")
	require.NoError(t, err)
	assert.Equal(t, "fill", d.Action)
	assert.Equal(t, "m", d.Memory)
	assert.JSONEq(t, `{"element": "0-7", "value": "admin"}`, string(d.Params))

	// Everything the model needs went into the prompts.
	assert.True(t, llm.lastReq.ForceJSON)
	assert.Contains(t, llm.lastReq.SystemPrompt, "fill a field")
	assert.Contains(t, llm.lastReq.UserPrompt, "log in as admin")
	assert.Contains(t, llm.lastReq.UserPrompt, "on the login page")
	assert.Contains(t, llm.lastReq.UserPrompt, `[0-7] <input name="user">`)
}

func TestDecideParsesBareJSONWithProse(t *testing.T) {
	d, _, err := decideWith(t, `Sure! {"reasoning": "r", "memory": "", "action": "fill", "params": {}} Hope that helps.`)
	require.NoError(t, err)
	assert.Equal(t, "fill", d.Action)
}

func TestDecideRejectsMissingAction(t *testing.T) {
	_, _, err := decideWith(t, `{"reasoning": "no action here"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "action")
}

func TestDecideRejectsNonJSON(t *testing.T) {
	_, _, err := decideWith(t, "I refuse to answer in JSON.")
	require.Error(t, err)
}
