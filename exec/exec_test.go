package exec

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	res, err := New().Run("echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRun_Failure(t *testing.T) {
	res, err := New().Run("sh", "-c", "echo oops >&2; exit 3")
	require.Error(t, err)

	execErr, ok := AsExecError(err)
	require.True(t, ok)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Equal(t, "oops\n", execErr.Stderr)
	assert.Equal(t, 3, res.ExitCode)
	assert.True(t, IsExitCode(err, 3))
	assert.False(t, IsExitCode(err, 1))
}

func TestRun_EmptyCommand(t *testing.T) {
	_, err := New().Run()
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := New().Run("willdolater-no-such-binary")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestWithDir(t *testing.T) {
	dir := t.TempDir()
	cmd := New()

	res, err := cmd.WithDir(dir).Run("pwd")
	require.NoError(t, err)
	assert.Contains(t, strings.TrimSpace(res.Stdout), strings.TrimPrefix(dir, "/private"))

	// Local settings apply to a single call.
	res, err = cmd.Run("pwd")
	require.NoError(t, err)
	assert.NotContains(t, res.Stdout, dir)
}

func TestWithEnv(t *testing.T) {
	cmd := New(WithEnv(map[string]string{"GLOBAL": "g"}))

	res, err := cmd.WithEnv(map[string]string{"LOCAL": "l"}).Run("sh", "-c", "echo $GLOBAL-$LOCAL")
	require.NoError(t, err)
	assert.Equal(t, "g-l\n", res.Stdout)

	res, err = cmd.Run("sh", "-c", "echo $GLOBAL-$LOCAL")
	require.NoError(t, err)
	assert.Equal(t, "g-\n", res.Stdout)
}

func TestWithDisableColors(t *testing.T) {
	res, err := New().WithDisableColors().Run("sh", "-c", "echo $NO_COLOR")
	require.NoError(t, err)
	assert.Equal(t, "1\n", res.Stdout)
}

func TestWithTimeout(t *testing.T) {
	start := time.Now()
	_, err := New().WithTimeout(50 * time.Millisecond).Run("sleep", "5")
	require.Error(t, err)
	assert.True(t, IsInterrupted(err))
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().WithContext(ctx).Run("sleep", "5")
	require.Error(t, err)
	assert.True(t, IsInterrupted(err))
}

func TestStream(t *testing.T) {
	var lines []string
	res, err := New().Stream(func(line string) error {
		lines = append(lines, line)
		return nil
	}, "printf", "a\nb\nc\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
	assert.Empty(t, res.Stdout)
}

func TestStream_StopEarly(t *testing.T) {
	errStop := stderrors.New("stop")
	count := 0

	start := time.Now()
	_, err := New().Stream(func(string) error {
		count++
		if count == 3 {
			return errStop
		}
		return nil
	}, "yes")

	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, 3, count)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestStream_Failure(t *testing.T) {
	var lines []string
	_, err := New().Stream(func(line string) error {
		lines = append(lines, line)
		return nil
	}, "sh", "-c", "echo partial; echo bad >&2; exit 2")

	require.Error(t, err)
	assert.True(t, IsExitCode(err, 2))
	assert.Equal(t, []string{"partial"}, lines)

	execErr, _ := AsExecError(err)
	assert.Equal(t, "bad\n", execErr.Stderr)
}

func TestClone(t *testing.T) {
	cmd := New(WithEnv(map[string]string{"A": "1"}))
	cmd.WithEnv(map[string]string{"B": "2"})

	clone := cmd.Clone()
	res, err := clone.Run("sh", "-c", "echo $A-$B")
	require.NoError(t, err)
	assert.Equal(t, "1-\n", res.Stdout)
}
