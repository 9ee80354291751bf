package llmservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"legal-researcher/internal/helper"
	"legal-researcher/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

// Tool is a capability an agent may invoke between model turns.
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input json.RawMessage) (string, error)
}

// AgentState tracks where an agent run is in its loop.
type AgentState int

const (
	AwaitingFinalAnswer AgentState = iota
	AwaitingToolResult
	Done
	IterationExceeded
)

func (s AgentState) String() string {
	switch s {
	case AwaitingFinalAnswer:
		return "awaiting_final_answer"
	case AwaitingToolResult:
		return "awaiting_tool_result"
	case Done:
		return "done"
	case IterationExceeded:
		return "iteration_exceeded"
	default:
		return fmt.Sprintf("AgentState(%d)", int(s))
	}
}

// AgentResult is the outcome of Agent.Run. When State is IterationExceeded,
// Answer holds the best partial answer: the last tool observation if any
// tool ran, otherwise the last model reply.
type AgentResult struct {
	Answer     string
	State      AgentState
	Iterations int
	ToolCalls  []string
}

// Exceeded reports whether the run hit its iteration cap.
func (r *AgentResult) Exceeded() bool {
	return r.State == IterationExceeded
}

// Err is nil for a finished run and wraps models.ErrIterationsExceeded when
// the cap cut the run short. The partial Answer stays usable either way.
func (r *AgentResult) Err() error {
	if !r.Exceeded() {
		return nil
	}
	return fmt.Errorf("%w after %d turns", models.ErrIterationsExceeded, r.Iterations)
}

type toolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// Agent runs a persona against a model for at most maxIterations model turns.
type Agent struct {
	client        *Client
	persona       models.Persona
	tools         map[string]Tool
	toolOrder     []string
	maxIterations int
}

func NewAgent(client *Client, persona models.Persona, maxIterations int, tools ...Tool) *Agent {
	if maxIterations < 1 {
		maxIterations = 1
	}
	a := &Agent{
		client:        client,
		persona:       persona,
		tools:         make(map[string]Tool, len(tools)),
		maxIterations: maxIterations,
	}
	for _, t := range tools {
		a.tools[t.Name()] = t
		a.toolOrder = append(a.toolOrder, t.Name())
	}
	return a
}

func (a *Agent) systemPrompt() string {
	var list strings.Builder
	for _, name := range a.toolOrder {
		fmt.Fprintf(&list, "- %s: %s\n", name, a.tools[name].Description())
	}
	return SystemPrompt(a.persona, fmt.Sprintf(models.ToolProtocolTemplate, strings.TrimRight(list.String(), "\n")))
}

// Run drives the agent until it answers without a tool call or the iteration
// cap is reached. Only model transport errors and cancellation are returned
// as errors; tool failures are fed back to the model as observations.
func (a *Agent) Run(ctx context.Context, task string) (*AgentResult, error) {
	// without tools there is nothing to loop on
	if len(a.tools) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reply, err := a.client.Generate(ctx, a.persona, task)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("agent", a.persona.Role).Msg("agent answered")
		return &AgentResult{Answer: reply, State: Done, Iterations: 1}, nil
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, a.systemPrompt()),
		llms.TextParts(llms.ChatMessageTypeHuman, task),
	}
	res := &AgentResult{State: AwaitingFinalAnswer}
	var lastReply, lastObservation string

	for {
		if res.Iterations >= a.maxIterations {
			res.State = IterationExceeded
			res.Answer = lastReply
			if lastObservation != "" {
				res.Answer = lastObservation
			}
			log.Warn().Str("agent", a.persona.Role).Int("iterations", res.Iterations).Msg("agent iteration limit reached")
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res.Iterations++
		reply, err := a.client.Chat(ctx, messages)
		if err != nil {
			return nil, err
		}
		lastReply = reply

		call, ok := a.parseToolCall(reply)
		if !ok {
			res.State = Done
			res.Answer = reply
			log.Debug().Str("agent", a.persona.Role).Int("iterations", res.Iterations).Msg("agent answered")
			return res, nil
		}

		res.State = AwaitingToolResult
		res.ToolCalls = append(res.ToolCalls, call.Tool)
		observation, err := a.invoke(ctx, call)
		if err != nil {
			return nil, err
		}
		lastObservation = observation
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeAI, reply),
			llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf(models.ObservationTemplate, call.Tool, observation)),
		)
		res.State = AwaitingFinalAnswer
	}
}

func (a *Agent) parseToolCall(reply string) (toolCall, bool) {
	if len(a.tools) == 0 {
		return toolCall{}, false
	}
	raw := helper.ExtractJSON(reply, '{')
	if raw == "" {
		return toolCall{}, false
	}
	var call toolCall
	if err := json.Unmarshal([]byte(raw), &call); err != nil || call.Tool == "" {
		return toolCall{}, false
	}
	return call, true
}

// invoke runs a tool call. Unknown tools and tool failures become
// observations so the model can recover; cancellation aborts the run.
func (a *Agent) invoke(ctx context.Context, call toolCall) (string, error) {
	tool, ok := a.tools[call.Tool]
	if !ok {
		return fmt.Sprintf("error: unknown tool %q; available tools: %s", call.Tool, strings.Join(a.toolOrder, ", ")), nil
	}
	input := call.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	out, err := tool.Call(ctx, input)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return "", err
		}
		log.Debug().Err(err).Str("tool", call.Tool).Msg("tool call failed")
		return "error: " + err.Error(), nil
	}
	log.Debug().Str("tool", call.Tool).Int("chars", len(out)).Msg("tool call finished")
	return out, nil
}
