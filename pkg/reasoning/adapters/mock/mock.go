package mock

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/reasoning"
)

// ErrMock is returned when the engine is configured to fail.
var ErrMock = errors.New("mock reasoning engine error")

// Call represents a recorded call to Generate.
type Call struct {
	Messages []model.Message
	Options  reasoning.Options
}

// MockEngine implements the reasoning.Engine interface with canned responses.
// Queued responses are returned first, in order; after that the last message
// is matched against canned responses, falling back to the default.
type MockEngine struct {
	// queue holds responses handed out one per call
	queue []string

	// cannedResponses maps prompts to predetermined responses
	cannedResponses map[string]string

	// defaultResponse is returned when no matching canned response is found
	defaultResponse string

	// exactMatch determines if prompt matching is exact or uses Contains
	exactMatch bool

	// err is returned instead of a response when set
	err error

	mutex sync.RWMutex

	callHistory []Call
}

// MockOption is a function that configures a MockEngine.
type MockOption func(*MockEngine)

// WithDefaultResponse sets the default response for the mock engine.
func WithDefaultResponse(resp string) MockOption {
	return func(m *MockEngine) {
		m.defaultResponse = resp
	}
}

// WithResponses queues responses returned by successive calls.
func WithResponses(responses ...string) MockOption {
	return func(m *MockEngine) {
		m.queue = append(m.queue, responses...)
	}
}

// WithExactMatch configures whether the mock engine uses exact matching.
func WithExactMatch(exact bool) MockOption {
	return func(m *MockEngine) {
		m.exactMatch = exact
	}
}

// WithError makes every call fail with err.
func WithError(err error) MockOption {
	return func(m *MockEngine) {
		m.err = err
	}
}

// NewMockEngine creates a new MockEngine with the given options.
func NewMockEngine(opts ...MockOption) *MockEngine {
	m := &MockEngine{
		cannedResponses: make(map[string]string),
		defaultResponse: "This is a mock response",
	}
	for _, opt := range opts {
		opt(m)
	}

	log.Debug("Created mock reasoning engine", "exact_match", m.exactMatch, "queued", len(m.queue))
	return m
}

var _ reasoning.Engine = (*MockEngine)(nil)

// Generate implements the reasoning.Engine interface.
func (m *MockEngine) Generate(ctx context.Context, messages []model.Message, opts ...reasoning.Option) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	options := reasoning.Apply(opts...)
	recorded := make([]model.Message, len(messages))
	copy(recorded, messages)
	m.callHistory = append(m.callHistory, Call{Messages: recorded, Options: options})

	if m.err != nil {
		return "", m.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if len(m.queue) > 0 {
		resp := m.queue[0]
		m.queue = m.queue[1:]
		return resp, nil
	}

	var prompt string
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}

	log.Debug("Processing prompt with mock engine",
		"prompt_length", len(prompt),
		"temperature", options.Temperature,
		"max_tokens", options.MaxTokens,
		"json", options.JSONMode)

	if m.exactMatch {
		if response, ok := m.cannedResponses[prompt]; ok {
			return response, nil
		}
	} else {
		for key, response := range m.cannedResponses {
			if strings.Contains(prompt, key) {
				return response, nil
			}
		}
	}

	return m.defaultResponse, nil
}

// AddResponse adds a canned response for a specific prompt.
func (m *MockEngine) AddResponse(prompt, response string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.cannedResponses[prompt] = response
}

// QueueResponses appends responses handed out one per call.
func (m *MockEngine) QueueResponses(responses ...string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.queue = append(m.queue, responses...)
}

// SetDefaultResponse sets the default response.
func (m *MockEngine) SetDefaultResponse(response string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.defaultResponse = response
}

// SetExactMatch configures whether the engine uses exact matching.
func (m *MockEngine) SetExactMatch(exact bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.exactMatch = exact
}

// SetError configures the error returned by every call; nil clears it.
func (m *MockEngine) SetError(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.err = err
}

// GetCallHistory returns a copy of the call history.
func (m *MockEngine) GetCallHistory() []Call {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	history := make([]Call, len(m.callHistory))
	copy(history, m.callHistory)
	return history
}

// ClearHistory clears the call history.
func (m *MockEngine) ClearHistory() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.callHistory = nil
}
