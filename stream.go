package agentruntime

import (
	"context"
	"errors"
	"iter"
	"sync"
)

type StreamState int

const (
	// StreamPending means nothing has been requested yet; the turn has not started.
	StreamPending StreamState = iota
	StreamOpen
	StreamEnded
	StreamFailed
	StreamCancelled
)

func (s StreamState) String() string {
	switch s {
	case StreamPending:
		return "pending"
	case StreamOpen:
		return "open"
	case StreamEnded:
		return "ended"
	case StreamFailed:
		return "failed"
	case StreamCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s StreamState) Terminal() bool {
	return s == StreamEnded || s == StreamFailed || s == StreamCancelled
}

// produceFunc generates the chunks of a stream. It must stop as soon as send returns an error and
// must not send anything after a terminal chunk.
type produceFunc func(ctx context.Context, s *Stream) error

// Stream is a lazy, finite, non-restartable sequence of Response chunks. Production starts on the
// first call to Next and at most one chunk is in flight. A stream terminates in exactly one of
// three observable ways: an end chunk (StreamEnded), an error chunk (StreamFailed) or Close
// called before a terminal chunk was read (StreamCancelled, no terminal chunk is delivered).
//
// Next must not be called concurrently; Close may be called from any goroutine.
type Stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	produce produceFunc

	startOnce sync.Once
	chunks    chan Response
	done      chan struct{}

	mu      sync.Mutex
	state   StreamState
	err     error
	turnErr error
}

func newStream(parent context.Context, produce produceFunc) *Stream {
	ctx, cancel := context.WithCancel(parent)
	return &Stream{
		ctx:     ctx,
		cancel:  cancel,
		produce: produce,
		chunks:  make(chan Response),
		done:    make(chan struct{}),
		state:   StreamPending,
	}
}

func (s *Stream) start() {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.state = StreamOpen
		s.mu.Unlock()
		go func() {
			defer close(s.done)
			defer close(s.chunks)
			defer s.cancel()
			_ = s.produce(s.ctx, s)
		}()
	})
}

func (s *Stream) send(r Response) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}
	select {
	case s.chunks <- r:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Stream) setTurnErr(err error) {
	s.mu.Lock()
	s.turnErr = err
	s.mu.Unlock()
}

func (s *Stream) finish(state StreamState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = state
	s.err = err
}

// Next returns the next chunk. It reports false once the stream has terminated; the terminal chunk
// itself is returned with true.
func (s *Stream) Next() (Response, bool) {
	if s.State().Terminal() {
		return Response{}, false
	}
	s.start()

	r, ok := <-s.chunks
	if !ok {
		err := s.ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		s.finish(StreamCancelled, err)
		return Response{}, false
	}
	switch r.Type {
	case ResponseTypeEnd:
		s.finish(StreamEnded, nil)
	case ResponseTypeError:
		s.mu.Lock()
		err := s.turnErr
		s.mu.Unlock()
		if err == nil {
			err = errors.New(r.Content)
		}
		s.finish(StreamFailed, err)
	}
	return r, true
}

// Chunks adapts the stream to a range-over-func sequence. Breaking out of the loop closes the
// stream. A stream can be ranged over once.
func (s *Stream) Chunks() iter.Seq[Response] {
	return func(yield func(Response) bool) {
		for {
			r, ok := s.Next()
			if !ok {
				return
			}
			if !yield(r) {
				s.Close()
				return
			}
		}
	}
}

// Close cancels production and waits for the producer to stop. Closing a stream that already
// delivered its terminal chunk only releases resources.
func (s *Stream) Close() error {
	s.cancel()
	s.startOnce.Do(func() {
		close(s.chunks)
		close(s.done)
	})
	<-s.done
	s.finish(StreamCancelled, context.Canceled)
	return nil
}

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the reason a failed or cancelled stream terminated. It is nil while open and after a
// successful end.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the producer has stopped.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}
