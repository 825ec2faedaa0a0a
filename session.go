// Package agentruntime - session.go
// Session holds the conversation history of one logical conversation and runs its turns.
package agentruntime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Session owns one ConversationHistory. Turns against a session are serialised: a second turn
// waits until the first one has finished, or until its own context is done.
type Session struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	turn    chan struct{}
	history *MessageList

	model   Model
	agent   *Agent
	storage Storage

	usageMu sync.Mutex
	usage   Usage

	logger *slog.Logger
}

type SessionOption func(*Session)

func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithSessionStorage journals every turn of the session.
func WithSessionStorage(storage Storage) SessionOption {
	return func(s *Session) {
		s.storage = storage
	}
}

func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a session with an empty history. Cancelling ctx closes the session.
func NewSession(ctx context.Context, model Model, agent *Agent, opts ...SessionOption) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctx:     ctx,
		cancel:  cancel,
		turn:    make(chan struct{}, 1),
		history: NewMessageList(),
		model:   model,
		agent:   agent,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		sessionID, err := gonanoid.New()
		if err != nil {
			panic(err)
		}
		s.id = sessionID
	}
	s.logger = s.logger.With("sessionID", s.id)
	s.logger.Info("Session started")
	return s
}

func (s *Session) ID() string {
	return s.id
}

// History is the session's conversation history. Read it with Snapshot.
func (s *Session) History() *MessageList {
	return s.history
}

func (s *Session) Usage() Usage {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()
	return s.usage
}

func (s *Session) Model() Model {
	return s.model
}

// Close ends the session. Turns in flight are cancelled and later turns fail with ErrSessionClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.logger.Info("Session closed", "messages", s.history.Len())
	})
}

func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) Closed() bool {
	return s.ctx.Err() != nil
}

// Invoke runs one turn. Streaming requests return a Stream that starts the turn when first read;
// other requests run the turn to completion and return its Result.
func (s *Session) Invoke(ctx context.Context, req Request) Reply {
	if req.Streaming {
		return Reply{Stream: s.Stream(ctx, req.Prompt)}
	}
	result := s.Complete(ctx, req.Prompt)
	return Reply{Result: &result}
}

// Complete runs one turn synchronously. The final assistant message is always appended on success;
// on failure the history keeps whatever the turn appended before failing.
func (s *Session) Complete(ctx context.Context, prompt string) Result {
	if err := s.acquire(ctx); err != nil {
		return resultFromError(err)
	}
	defer s.release()

	ctx, done := s.turnContext(ctx)
	defer done()

	turn := s.beginTurn(ctx, prompt)
	outcome, err := s.agent.Run(ctx, s.model, s.history, false, nil)
	s.addUsage(outcome.Usage)
	if err != nil {
		err = s.turnError(err)
		s.finishTurn(turn, outcome, "", err)
		return resultFromError(err)
	}

	s.history.Append(AssistantMessage(outcome.Text))
	s.finishTurn(turn, outcome, outcome.Text, nil)
	return Result{Result: outcome.Text}
}

// Stream runs one turn in streaming mode. Each text fragment is delivered as a content chunk as
// soon as the model produces it, followed by exactly one end or error chunk. On success the final
// text, when non-empty, is appended to history before the end chunk is delivered. Failed and
// cancelled turns commit no assistant answer.
func (s *Session) Stream(ctx context.Context, prompt string) *Stream {
	return newStream(ctx, func(streamCtx context.Context, st *Stream) error {
		if err := s.acquire(streamCtx); err != nil {
			if streamCtx.Err() != nil {
				return err
			}
			st.setTurnErr(err)
			_ = st.send(Response{Content: err.Error(), Type: ResponseTypeError})
			return err
		}
		defer s.release()

		ctx, done := s.turnContext(streamCtx)
		defer done()

		turn := s.beginTurn(ctx, prompt)
		outcome, err := s.agent.Run(ctx, s.model, s.history, true, func(text string) error {
			return st.send(Response{Content: text, Type: ResponseTypeContent})
		})
		s.addUsage(outcome.Usage)
		if err != nil {
			if streamCtx.Err() != nil {
				s.logger.Info("Stream cancelled by caller", "turnID", turn.ID)
				s.finishTurn(turn, outcome, "", streamCtx.Err())
				return streamCtx.Err()
			}
			err = s.turnError(err)
			s.finishTurn(turn, outcome, "", err)
			st.setTurnErr(err)
			_ = st.send(Response{Content: err.Error(), Type: ResponseTypeError})
			return err
		}

		end := Response{Type: ResponseTypeEnd}
		if outcome.Text != "" {
			s.history.Append(AssistantMessage(outcome.Text))
		}
		s.finishTurn(turn, outcome, outcome.Text, nil)
		return st.send(end)
	})
}

func (s *Session) acquire(ctx context.Context) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	select {
	case s.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
	if s.Closed() {
		<-s.turn
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) release() {
	<-s.turn
}

// turnContext derives the context of one turn: cancelled when either the caller's context or the
// session ends, and carrying the session and turn identifiers.
func (s *Session) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	ctx = context.WithValue(ctx, ContextKeySessionID, s.id)
	ctx = context.WithValue(ctx, ContextKeyTurnID, uuid.NewString())
	return ctx, func() {
		stop()
		cancel()
	}
}

// turnError reports cancellations caused by Close as ErrSessionClosed.
func (s *Session) turnError(err error) error {
	if s.Closed() && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ErrSessionClosed
	}
	return err
}

func (s *Session) addUsage(u Usage) {
	s.usageMu.Lock()
	s.usage = s.usage.Add(u)
	s.usageMu.Unlock()
}

func (s *Session) beginTurn(ctx context.Context, prompt string) *Conversation {
	turnID, _ := ctx.Value(ContextKeyTurnID).(string)
	s.history.Append(UserMessage(prompt))
	s.logger.Info("Turn started", "turnID", turnID)

	conv := &Conversation{
		ID:          turnID,
		SessionID:   s.id,
		UserMessage: prompt,
		Status:      TurnRunning,
	}
	if s.storage != nil {
		if err := s.storage.CreateConversation(context.WithoutCancel(ctx), conv); err != nil {
			s.logger.Error("Error journaling turn", "turnID", turnID, "error", err)
		}
	}
	return conv
}

func (s *Session) finishTurn(conv *Conversation, outcome TurnOutcome, answer string, err error) {
	update := ConversationUpdate{
		AssistantMessage: answer,
		Status:           TurnDone,
		Rounds:           outcome.Rounds,
		Usage:            outcome.Usage,
	}
	if err != nil {
		update.Error = err.Error()
		update.ErrorType = ErrorType(err)
		update.Status = TurnFailed
		if update.ErrorType == ErrorTypeCancelled {
			update.Status = TurnCancelled
		}
		s.logger.Warn("Turn failed", "turnID", conv.ID, "errorType", update.ErrorType, "error", err)
	} else {
		s.logger.Info("Turn finished", "turnID", conv.ID, "rounds", outcome.Rounds)
	}

	if s.storage == nil {
		return
	}
	if err := s.storage.FinishConversation(context.Background(), conv.ID, update); err != nil {
		s.logger.Error("Error journaling turn result", "turnID", conv.ID, "error", err)
	}
}
