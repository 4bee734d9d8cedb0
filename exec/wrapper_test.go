package exec_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/willdolater/exec"
	"github.com/jmgilman/willdolater/exec/mocks"
)

func chainable(m *mocks.ExecutorMock) *mocks.ExecutorMock {
	m.WithEnvFunc = func(map[string]string) exec.Executor { return m }
	m.WithDirFunc = func(string) exec.Executor { return m }
	m.WithContextFunc = func(context.Context) exec.Executor { return m }
	m.WithTimeoutFunc = func(time.Duration) exec.Executor { return m }
	m.WithDisableColorsFunc = func() exec.Executor { return m }
	m.CloneFunc = func() exec.Executor { return m }
	return m
}

func TestWrapper_Run(t *testing.T) {
	m := chainable(&mocks.ExecutorMock{
		RunFunc: func(args ...string) (*exec.Result, error) {
			return &exec.Result{Stdout: "ok"}, nil
		},
	})

	git := exec.NewWrapper(m, "git")
	res, err := git.WithDir("/repo").WithTimeout(time.Second).Run("status", "--porcelain")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Stdout)

	require.Len(t, m.RunCalls(), 1)
	assert.Equal(t, []string{"git", "status", "--porcelain"}, m.RunCalls()[0].Args)
	require.Len(t, m.WithDirCalls(), 1)
	assert.Equal(t, "/repo", m.WithDirCalls()[0].Dir)
	assert.Equal(t, time.Second, m.WithTimeoutCalls()[0].D)
}

func TestWrapper_Stream(t *testing.T) {
	m := chainable(&mocks.ExecutorMock{
		StreamFunc: func(onLine func(string) error, args ...string) (*exec.Result, error) {
			for _, l := range []string{"one", "two"} {
				if err := onLine(l); err != nil {
					return nil, err
				}
			}
			return &exec.Result{}, nil
		},
	})

	rg := exec.NewWrapper(m, "rg")
	var got []string
	_, err := rg.Stream(func(line string) error {
		got = append(got, line)
		return nil
	}, "TODO")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, []string{"rg", "TODO"}, m.StreamCalls()[0].Args)
}

func TestWrapper_RealCommand(t *testing.T) {
	sh := exec.NewWrapper(exec.New(), "sh")
	assert.Equal(t, "sh", sh.Binary())

	res, err := sh.Run("-c", "echo wrapped")
	require.NoError(t, err)
	assert.Equal(t, "wrapped\n", res.Stdout)

	clone := sh.Clone()
	res, err = clone.Run("-c", "echo cloned")
	require.NoError(t, err)
	assert.Equal(t, "cloned\n", res.Stdout)
}
