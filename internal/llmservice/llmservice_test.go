package llmservice

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"legal-researcher/internal/config"
	"legal-researcher/internal/llmservice/llmtest"
	"legal-researcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Pipeline.CallTimeout = time.Second
	cfg.Pipeline.MaxRetries = 2
	cfg.Pipeline.RetryInterval = time.Millisecond
	return cfg
}

func TestGenerate_FakeModel(t *testing.T) {
	c := NewClient(fake.NewFakeLLM([]string{`{"parties": []}`}), testConfig())
	out, err := c.Generate(context.Background(), models.EntityExtractorPersona, "case text")
	require.NoError(t, err)
	assert.Equal(t, `{"parties": []}`, out)
}

func TestGenerate_SendsPersonaAsSystemMessage(t *testing.T) {
	model := llmtest.Replies("ok")
	c := NewClient(model, testConfig())

	_, err := c.Generate(context.Background(), models.LegalReasonerPersona, "analyse this")
	require.NoError(t, err)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].System, "Legal Reasoner")
	assert.Contains(t, calls[0].System, models.LegalReasonerPersona.Goal)
	assert.Equal(t, "analyse this", calls[0].Last)
}

func TestChat_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	model := llmtest.New(func(ctx context.Context, req llmtest.Request) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("connection reset by peer")
		}
		return "recovered", nil
	})
	c := NewClient(model, testConfig())

	out, err := c.Generate(context.Background(), models.ReportWriterPersona, "write")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.EqualValues(t, 2, calls.Load())
}

func TestChat_Unavailable(t *testing.T) {
	model := llmtest.New(func(ctx context.Context, req llmtest.Request) (string, error) {
		return "", errors.New("503 from provider")
	})
	c := NewClient(model, testConfig())

	_, err := c.Generate(context.Background(), models.ReportWriterPersona, "write")
	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.Len(t, model.Calls(), 3)
}

func TestChat_Timeout(t *testing.T) {
	model := llmtest.New(func(ctx context.Context, req llmtest.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	cfg := testConfig()
	cfg.Pipeline.CallTimeout = 20 * time.Millisecond
	cfg.Pipeline.MaxRetries = 0
	c := NewClient(model, cfg)

	_, err := c.Generate(context.Background(), models.EntityExtractorPersona, "case")
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.Equal(t, "timeout", models.ErrorKind(err))
}

func TestChat_CanceledIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := llmtest.New(func(_ context.Context, req llmtest.Request) (string, error) {
		cancel()
		return "", errors.New("aborted")
	})
	c := NewClient(model, testConfig())

	_, err := c.Generate(ctx, models.EntityExtractorPersona, "case")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, model.Calls(), 1)
}

func TestNewModel(t *testing.T) {
	_, err := NewModel(config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini"})
	assert.ErrorIs(t, err, models.ErrMissingCredential)

	m, err := NewModel(config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", Key: "Bearer sk-test", BaseURL: "http://localhost:1/v1"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	m, err = NewModel(config.LLMConfig{Provider: "ollama", Model: "llama3", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = NewModel(config.LLMConfig{Provider: "googleai", Model: "gemini-1.5-flash"})
	assert.ErrorIs(t, err, models.ErrMissingCredential)

	m, err = NewModel(config.LLMConfig{Provider: "googleai", Model: "gemini-1.5-flash", Key: "g-test"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = NewModel(config.LLMConfig{Provider: "hash"})
	assert.Error(t, err)
}

type echoTool struct {
	name  string
	calls atomic.Int32
	fail  error
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echoes the query field" }
func (e *echoTool) Call(_ context.Context, input json.RawMessage) (string, error) {
	e.calls.Add(1)
	if e.fail != nil {
		return "", e.fail
	}
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", err
	}
	return "results for " + in.Query, nil
}

func TestAgent_ToolThenAnswer(t *testing.T) {
	tool := &echoTool{name: "rag_search"}
	model := llmtest.Replies(
		`{"tool": "rag_search", "input": {"query": "theft"}}`,
		`[{"title": "IPC", "citation": "Section 379"}]`,
	)
	agent := NewAgent(NewClient(model, testConfig()), models.StatuteResearcherPersona, 5, tool)

	res, err := agent.Run(context.Background(), "find statutes")
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.False(t, res.Exceeded())
	assert.NoError(t, res.Err())
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, []string{"rag_search"}, res.ToolCalls)
	assert.Equal(t, `[{"title": "IPC", "citation": "Section 379"}]`, res.Answer)
	assert.EqualValues(t, 1, tool.calls.Load())

	calls := model.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].System, "rag_search: echoes the query field")
	assert.Equal(t, "Observation from rag_search:\nresults for theft", calls[1].Last)
	assert.Len(t, calls[1].Messages, 4)
}

func TestAgent_IterationExceededReturnsLastObservation(t *testing.T) {
	tool := &echoTool{name: "caselaw_search"}
	model := llmtest.New(func(ctx context.Context, req llmtest.Request) (string, error) {
		return `{"tool": "caselaw_search", "input": {"query": "again"}}`, nil
	})
	agent := NewAgent(NewClient(model, testConfig()), models.PrecedentResearcherPersona, 3, tool)

	res, err := agent.Run(context.Background(), "find precedents")
	require.NoError(t, err)
	assert.Equal(t, IterationExceeded, res.State)
	assert.True(t, res.Exceeded())
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, "results for again", res.Answer)
	assert.ErrorIs(t, res.Err(), models.ErrIterationsExceeded)
	assert.Len(t, model.Calls(), 3)
	assert.EqualValues(t, 3, tool.calls.Load())
}

func TestAgent_SingleIterationCap(t *testing.T) {
	model := llmtest.Replies(`{"tool": "rag_search", "input": {}}`)
	agent := NewAgent(NewClient(model, testConfig()), models.StatuteResearcherPersona, 1, &echoTool{name: "rag_search", fail: errors.New("index missing")})

	res, err := agent.Run(context.Background(), "find statutes")
	require.NoError(t, err)
	assert.Equal(t, IterationExceeded, res.State)
	assert.Equal(t, "error: index missing", res.Answer)
}

func TestAgent_UnknownToolAndToolErrorsBecomeObservations(t *testing.T) {
	failing := &echoTool{name: "legal_dictionary", fail: errors.New("term not found")}
	model := llmtest.Replies(
		`{"tool": "web_search", "input": {"query": "x"}}`,
		`{"tool": "legal_dictionary", "input": {"term": "mens rea"}}`,
		"final answer",
	)
	agent := NewAgent(NewClient(model, testConfig()), models.StatuteResearcherPersona, 5, failing)

	res, err := agent.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, "final answer", res.Answer)

	calls := model.Calls()
	require.Len(t, calls, 3)
	assert.True(t, strings.HasPrefix(calls[1].Last, "Observation from web_search:\nerror: unknown tool"))
	assert.Equal(t, "Observation from legal_dictionary:\nerror: term not found", calls[2].Last)
}

func TestAgent_WithoutToolsAnswersImmediately(t *testing.T) {
	model := llmtest.Replies(`{"tool": "rag_search", "input": {}}`)
	agent := NewAgent(NewClient(model, testConfig()), models.EntityExtractorPersona, 1)

	res, err := agent.Run(context.Background(), "task")
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, `{"tool": "rag_search", "input": {}}`, res.Answer)
	assert.Equal(t, 1, res.Iterations)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, SystemPrompt(models.EntityExtractorPersona, ""), calls[0].System)
	assert.Equal(t, "task", calls[0].Last)
	assert.Len(t, calls[0].Messages, 2)
}

func TestAgent_ModelFailureIsReturned(t *testing.T) {
	model := llmtest.New(func(ctx context.Context, req llmtest.Request) (string, error) {
		return "", errors.New("boom")
	})
	cfg := testConfig()
	cfg.Pipeline.MaxRetries = 0
	agent := NewAgent(NewClient(model, cfg), models.StatuteResearcherPersona, 3)

	_, err := agent.Run(context.Background(), "task")
	assert.ErrorIs(t, err, models.ErrUnavailable)
}

func TestAgentState_String(t *testing.T) {
	assert.Equal(t, "awaiting_tool_result", AwaitingToolResult.String())
	assert.Equal(t, "iteration_exceeded", IterationExceeded.String())
	assert.Equal(t, "AgentState(9)", AgentState(9).String())
}
