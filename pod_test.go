package agentruntime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPodSessions(t *testing.T) {
	model := newScriptedModel()
	model.repeat = &step{text: "hi"}
	pod := NewPod(model, NewAgent("", nil))
	defer pod.Close()

	a, err := pod.NewSession(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID())

	b, err := pod.GetOrCreate(context.Background(), "user-b")
	require.NoError(t, err)
	assert.Equal(t, "user-b", b.ID())

	again, err := pod.GetOrCreate(context.Background(), "user-b")
	require.NoError(t, err)
	assert.Same(t, b, again)

	got, ok := pod.Session(a.ID())
	require.True(t, ok)
	assert.Same(t, a, got)

	// sessions keep separate histories
	a.Complete(context.Background(), "from a")
	assert.Equal(t, 2, a.History().Len())
	assert.Equal(t, 0, b.History().Len())

	assert.ElementsMatch(t, []string{a.ID(), "user-b"}, pod.Sessions())

	assert.True(t, pod.CloseSession("user-b"))
	assert.False(t, pod.CloseSession("user-b"))
	assert.True(t, b.Closed())
	_, ok = pod.Session("user-b")
	assert.False(t, ok)
}

func TestPodSessionOutlivesRequestContext(t *testing.T) {
	model := newScriptedModel()
	model.repeat = &step{text: "still here"}
	pod := NewPod(model, NewAgent("", nil))
	defer pod.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := pod.GetOrCreate(ctx, "s1")
	require.NoError(t, err)
	cancel()

	assert.False(t, sess.Closed())
	assert.Equal(t, "still here", sess.Complete(context.Background(), "hi").Result)
}

func TestPodClose(t *testing.T) {
	pod := NewPod(newScriptedModel(), NewAgent("", nil))
	sess, err := pod.NewSession(context.Background())
	require.NoError(t, err)

	pod.Close()
	assert.True(t, sess.Closed())
	_, err = pod.NewSession(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, pod.Sessions())
}
