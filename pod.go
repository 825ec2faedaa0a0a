package agentruntime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Pod owns the shared resources (model, agent, journal) and the live sessions built on them.
type Pod struct {
	model   Model
	agent   *Agent
	storage Storage

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	logger *slog.Logger
}

type PodOption func(*Pod)

func WithStorage(storage Storage) PodOption {
	return func(p *Pod) {
		p.storage = storage
	}
}

func WithPodLogger(logger *slog.Logger) PodOption {
	return func(p *Pod) {
		p.logger = logger
	}
}

// NewPod constructs a new Pod with the given resources.
func NewPod(model Model, agent *Agent, opts ...PodOption) *Pod {
	p := &Pod{
		model:    model,
		agent:    agent,
		sessions: map[string]*Session{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pod) Agent() *Agent {
	return p.agent
}

// NewSession creates a session with a generated ID.
func (p *Pod) NewSession(ctx context.Context) (*Session, error) {
	return p.newSession(ctx, "")
}

// GetOrCreate returns the live session with the given ID, creating it when it does not exist.
func (p *Pod) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	p.mu.Lock()
	if sess, ok := p.sessions[id]; ok && !sess.Closed() {
		p.mu.Unlock()
		return sess, nil
	}
	p.mu.Unlock()
	return p.newSession(ctx, id)
}

func (p *Pod) newSession(ctx context.Context, id string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrSessionClosed
	}
	if sess, ok := p.sessions[id]; ok && id != "" && !sess.Closed() {
		return sess, nil
	}
	sess := NewSession(context.WithoutCancel(ctx), p.model, p.agent,
		WithSessionID(id),
		WithSessionStorage(p.storage),
		WithSessionLogger(p.logger),
	)
	p.sessions[sess.ID()] = sess
	return sess, nil
}

func (p *Pod) Session(id string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[id]
	if !ok || sess.Closed() {
		return nil, false
	}
	return sess, true
}

// CloseSession closes and forgets a session. It reports whether the session existed.
func (p *Pod) CloseSession(id string) bool {
	p.mu.Lock()
	sess, ok := p.sessions[id]
	delete(p.sessions, id)
	p.mu.Unlock()
	if ok {
		sess.Close()
	}
	return ok
}

// Sessions lists the IDs of live sessions in sorted order.
func (p *Pod) Sessions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.sessions))
	for id, sess := range p.sessions {
		if !sess.Closed() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Close closes every session. The pod cannot create sessions afterwards.
func (p *Pod) Close() {
	p.mu.Lock()
	p.closed = true
	sessions := p.sessions
	p.sessions = map[string]*Session{}
	p.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
}
