package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir())
	require.NoError(t, err)
	return ws
}

func TestValidateRelPath(t *testing.T) {
	ws := newWorkspace(t)

	full, err := ws.ValidateRelPath("src/main.py")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, ws.Root()))

	_, err = ws.ValidateRelPath("a/./b/../c.txt")
	require.NoError(t, err)

	for _, bad := range []string{"", "  ", "/etc/passwd", "..", "../x", "a/../../x"} {
		_, err := ws.ValidateRelPath(bad)
		assert.Error(t, err, bad)
	}
	_, err = ws.ValidateRelPath("../escape")
	assert.ErrorIs(t, err, ErrOutsideWorkspace)
}

func TestWorkspaceReadWriteList(t *testing.T) {
	ws := newWorkspace(t)

	require.NoError(t, ws.WriteFile("app/main.py", "print('hi')\n"))
	require.NoError(t, ws.WriteFile("README.md", "# demo"))
	require.NoError(t, ws.WriteFile(".git/HEAD", "ref"))

	content, err := ws.ReadFile("app/main.py")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", content)

	_, err = ws.ReadFile("missing.txt")
	assert.Error(t, err)

	entries, err := ws.List("")
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "README.md", Size: 6},
		{Path: "app", Dir: true},
		{Path: "app/main.py", Size: 12},
	}, entries)

	entries, err = ws.List("app")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "app/main.py", entries[0].Path)
}

func TestRunnerRun(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, ws.WriteFile("data.txt", "42"))
	r := NewRunner(ws)

	res, err := r.Run(context.Background(), "cat data.txt; echo; echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "42")
	assert.Contains(t, res.Output, "oops")

	res, err = r.Run(context.Background(), "exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)

	_, err = r.Run(context.Background(), " ")
	assert.Error(t, err)
}

func TestRunnerTimeout(t *testing.T) {
	r := NewRunner(newWorkspace(t), WithTimeout(100*time.Millisecond))
	_, err := r.Run(context.Background(), "sleep 5")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRunnerOutputCap(t *testing.T) {
	r := NewRunner(newWorkspace(t), WithMaxOutput(10))
	res, err := r.Run(context.Background(), "printf '0123456789abcdef'")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", res.Output)
	assert.True(t, res.Truncated)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("ab"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, _ = b.Write([]byte("cdef"))
	assert.Equal(t, 4, n)
	_, _ = b.Write([]byte("g"))
	assert.Equal(t, "abcd", b.String())
	assert.True(t, b.truncated)
}
