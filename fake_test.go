package agentruntime

import (
	"context"
	"errors"
	"io"
	"sync"
)

// step is one scripted model answer.
type step struct {
	text   string
	chunks []string
	calls  []ToolCallRequest
	usage  Usage
	// err fails the call before anything is produced.
	err error
	// streamErr fails a streaming call after its chunks were delivered.
	streamErr error
}

// scriptedModel answers calls from a script. Once the script is exhausted, repeat is used.
type scriptedModel struct {
	name string

	mu       sync.Mutex
	script   []step
	repeat   *step
	calls    int
	requests []ModelRequest
}

func newScriptedModel(steps ...step) *scriptedModel {
	return &scriptedModel{name: "scripted", script: steps}
}

func (m *scriptedModel) Name() string {
	return m.name
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *scriptedModel) Requests() []ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ModelRequest(nil), m.requests...)
}

func (m *scriptedModel) next(req ModelRequest) (step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	if len(m.script) > 0 {
		s := m.script[0]
		m.script = m.script[1:]
		return s, nil
	}
	if m.repeat != nil {
		return *m.repeat, nil
	}
	return step{}, errors.New("script exhausted")
}

func (m *scriptedModel) Invoke(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	s, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ModelResponse{Text: s.text, ToolCalls: s.calls, Usage: s.usage}, nil
}

func (m *scriptedModel) Stream(ctx context.Context, req ModelRequest) (ModelStream, error) {
	s, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	chunks := s.chunks
	if chunks == nil && s.text != "" {
		chunks = []string{s.text}
	}
	var events []ModelEvent
	for _, c := range chunks {
		events = append(events, TextDelta(c))
	}
	if len(s.calls) > 0 {
		events = append(events, ToolCallsRequested(s.calls))
	}
	events = append(events, Final("", s.usage))
	return &sliceStream{ctx: ctx, events: events, err: s.streamErr}, nil
}

type sliceStream struct {
	ctx    context.Context
	events []ModelEvent
	err    error
	closed bool
}

func (s *sliceStream) Next() (ModelEvent, error) {
	if err := s.ctx.Err(); err != nil {
		return ModelEvent{}, err
	}
	if len(s.events) == 0 {
		if s.err != nil {
			return ModelEvent{}, s.err
		}
		return ModelEvent{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// blockingModel streams one chunk and then waits for the context to end.
type blockingModel struct {
	started chan struct{}
	once    sync.Once
}

func newBlockingModel() *blockingModel {
	return &blockingModel{started: make(chan struct{})}
}

func (m *blockingModel) Name() string { return "blocking" }

func (m *blockingModel) Invoke(ctx context.Context, req ModelRequest) (*ModelResponse, error) {
	m.once.Do(func() { close(m.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *blockingModel) Stream(ctx context.Context, req ModelRequest) (ModelStream, error) {
	return &blockingStream{ctx: ctx, model: m}, nil
}

type blockingStream struct {
	ctx   context.Context
	model *blockingModel
	sent  bool
}

func (s *blockingStream) Next() (ModelEvent, error) {
	if !s.sent {
		s.sent = true
		return TextDelta("partial"), nil
	}
	s.model.once.Do(func() { close(s.model.started) })
	<-s.ctx.Done()
	return ModelEvent{}, s.ctx.Err()
}

func (s *blockingStream) Close() error { return nil }

type funcTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) (string, error)
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return "test tool " + t.name }
func (t *funcTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *funcTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

func echoTool() *funcTool {
	return &funcTool{name: "echo", fn: func(ctx context.Context, args map[string]any) (string, error) {
		v, _ := args["text"].(string)
		return "echo: " + v, nil
	}}
}

func call(id, name, args string) ToolCallRequest {
	return ToolCallRequest{ID: id, Name: name, Arguments: args}
}

func mustRegistry(tools ...Tool) *ToolRegistry {
	r, err := NewToolRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

func roles(msgs []Message) []Role {
	out := make([]Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func collect(s *Stream) []Response {
	var out []Response
	for r := range s.Chunks() {
		out = append(out, r)
	}
	return out
}
