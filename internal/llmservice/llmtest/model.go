// Package llmtest provides a scriptable llms.Model for tests.
package llmtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Request is what the model saw on one call.
type Request struct {
	System   string
	Last     string
	Messages []llms.MessageContent
}

// Handler produces the reply for one call.
type Handler func(ctx context.Context, req Request) (string, error)

// Model records every call and answers through its Handler. It is safe for
// concurrent use.
type Model struct {
	mu      sync.Mutex
	handler Handler
	calls   []Request
}

var _ llms.Model = (*Model)(nil)

func New(h Handler) *Model {
	return &Model{handler: h}
}

// Replies answers calls in order and fails once the script runs out.
func Replies(replies ...string) *Model {
	var mu sync.Mutex
	next := 0
	return New(func(_ context.Context, _ Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return "", fmt.Errorf("llmtest: no reply scripted for call %d", next+1)
		}
		next++
		return replies[next-1], nil
	})
}

func (m *Model) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	req := Request{Messages: messages}
	for _, msg := range messages {
		text := textOf(msg)
		if msg.Role == llms.ChatMessageTypeSystem {
			req.System = text
		}
		req.Last = text
	}
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	reply, err := m.handler(ctx, req)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *Model) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// Calls returns a copy of the recorded requests.
func (m *Model) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallsWithRole counts calls whose system prompt mentions role.
func (m *Model) CallsWithRole(role string) int {
	n := 0
	for _, c := range m.Calls() {
		if strings.Contains(c.System, role) {
			n++
		}
	}
	return n
}

func textOf(msg llms.MessageContent) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if t, ok := part.(llms.TextContent); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}
