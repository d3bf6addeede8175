// internal/agent/mind.go

// Package agent runs the decide-execute loop that drives a task: capture the
// page, ask the model for one action, dispatch it, record the outcome.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// Mind turns one cycle's context into a single model decision.
type Mind struct {
	logger *zap.Logger
	client schemas.LLMClient
}

func NewMind(logger *zap.Logger, client schemas.LLMClient) *Mind {
	return &Mind{logger: logger.Named("mind"), client: client}
}

// Decide asks the model for the next action given the task, the running
// memory, the fresh snapshot, and the registered action schemas.
func (m *Mind) Decide(
	ctx context.Context,
	description string,
	memory string,
	recent []schemas.AgentStep,
	snapshot *schemas.Snapshot,
	actionSchemas []schemas.ActionSchema,
) (schemas.AgentDecision, error) {
	userPrompt, err := m.buildUserPrompt(description, memory, recent, snapshot)
	if err != nil {
		return schemas.AgentDecision{}, err
	}

	apiCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	response, err := m.client.GenerateResponse(apiCtx, schemas.GenerationRequest{
		SystemPrompt: m.buildSystemPrompt(actionSchemas),
		UserPrompt:   userPrompt,
		Temperature:  0.2,
		ForceJSON:    true,
	})
	if err != nil {
		return schemas.AgentDecision{}, fmt.Errorf("llm generation failed: %w", err)
	}

	decision, err := m.parseDecision(response)
	if err != nil {
		return schemas.AgentDecision{}, fmt.Errorf("failed to parse llm response: %w", err)
	}
	return decision, nil
}

func (m *Mind) buildSystemPrompt(actionSchemas []schemas.ActionSchema) string {
	var sb strings.Builder
	sb.WriteString(`You are the mind of 'pagepilot', an autonomous browser automation agent.
Your goal is to achieve the task objective by interacting with a web page one action at a time.
Each cycle you receive the current page as a list of interactive elements, each tagged with an
encoded id like "0-1234". You must respond with a single JSON object:

{
  "reasoning": "why you chose this action",
  "memory": "an updated running summary of everything learned so far",
  "action": "<one action name from the list below>",
  "params": { ... parameters matching that action's schema ... }
}

Rules:
- Choose exactly one action per cycle.
- Reference elements only by their encoded id from the current element list.
- For every element-targeting action, also set "instruction" to a short description
  of the target (e.g. "the blue Submit button"), so the step can be replayed later.
- When the task objective is met or provably impossible, use the "complete" action.

Available actions:
`)
	for _, s := range actionSchemas {
		params, err := json.MarshalToString(s.Parameters)
		if err != nil {
			params = "{}"
		}
		fmt.Fprintf(&sb, "- %s: %s\n  parameters: %s\n", s.Name, s.Description, params)
	}
	return sb.String()
}

func (m *Mind) buildUserPrompt(description, memory string, recent []schemas.AgentStep, snapshot *schemas.Snapshot) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task objective: %s\n\n", description)

	if memory != "" {
		fmt.Fprintf(&sb, "Running memory:\n%s\n\n", memory)
	}

	if len(recent) > 0 {
		sb.WriteString("Recent steps:\n")
		for _, step := range recent {
			outcome := "ok"
			if !step.Success {
				outcome = "FAILED"
			}
			fmt.Fprintf(&sb, "  %d. %s -> %s (%s)\n", step.Index, step.Decision.Action, outcome, step.Message)
		}
		sb.WriteString("\n")
	}

	if snapshot == nil {
		return "", fmt.Errorf("cannot build prompt without a snapshot")
	}
	fmt.Fprintf(&sb, "Current page: %s (%s)\n", snapshot.Title, snapshot.URL)
	if snapshot.Truncated {
		sb.WriteString("Note: the element list was truncated to fit the context budget.\n")
	}
	sb.WriteString("Interactive elements:\n")
	sb.WriteString(snapshot.Serialized)
	sb.WriteString("\nDetermine the next action. Respond with a single JSON object.")
	return sb.String(), nil
}

// jsonBlockRegex extracts a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// parseDecision tolerates markdown fences and leading prose around the JSON
// object the model was asked for.
func (m *Mind) parseDecision(response string) (schemas.AgentDecision, error) {
	response = strings.TrimSpace(response)
	var raw string

	if matches := jsonBlockRegex.FindStringSubmatch(response); len(matches) > 1 {
		raw = strings.TrimSpace(matches[1])
	} else {
		first := strings.Index(response, "{")
		last := strings.LastIndex(response, "}")
		if first != -1 && last > first {
			raw = response[first : last+1]
		} else {
			raw = response
		}
	}

	if raw == "" {
		return schemas.AgentDecision{}, fmt.Errorf("could not find any JSON in the llm response")
	}

	var decision schemas.AgentDecision
	if err := json.UnmarshalFromString(raw, &decision); err != nil {
		m.logger.Warn("Failed to unmarshal llm response.",
			zap.String("raw_response", response),
			zap.String("extracted_json", raw),
			zap.Error(err))
		return schemas.AgentDecision{}, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}

	if decision.Action == "" {
		return schemas.AgentDecision{}, fmt.Errorf("llm response missing required 'action' field")
	}
	return decision, nil
}
