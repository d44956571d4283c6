package sandbox

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

const workerEnv = "PARSERGEN_SANDBOX_WORKER"

// TestMain lets the test binary double as the sandbox worker.
func TestMain(m *testing.M) {
	if os.Getenv(workerEnv) == "1" {
		if os.Getenv(workerEnv+"_CRASH") == "1" {
			os.Stderr.WriteString("worker exploded\n")
			os.Exit(2)
		}
		if err := Serve(context.Background(), os.Stdin, os.Stdout, zap.NewNop()); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func newTestExecutor(t *testing.T, timeout time.Duration, extraEnv ...string) *ProcessExecutor {
	t.Helper()
	env := append(os.Environ(), workerEnv+"=1")
	env = append(env, extraEnv...)
	p, err := NewProcessExecutor(ProcessOptions{
		Command: []string{os.Args[0]},
		Env:     env,
		Timeout: timeout,
		Grace:   time.Second,
	})
	require.NoError(t, err)
	return p
}

func TestProcessExecutor_Parses(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := newTestExecutor(t, 5*time.Second)
	table, err := p.Execute(context.Background(), lineRoutine, sampleDoc())
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, []string{"date", "narration", "amount"}, table.Columns)
	assert.Equal(t, "1500.00", table.Rows[0]["amount"])
}

func TestProcessExecutor_RuntimeFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := `package main

import (
	"fmt"

	"stmt"
)

func Parse(doc stmt.Document) (*stmt.Table, error) {
	return nil, fmt.Errorf("page %d unreadable", len(doc.Pages))
}
`
	_, err := newTestExecutor(t, 5*time.Second).Execute(context.Background(), src, sampleDoc())
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureRuntime, f.Kind)
	assert.Equal(t, "page 1 unreadable", f.Message)
}

func TestProcessExecutor_LoadFailureSkipsWorker(t *testing.T) {
	p, err := NewProcessExecutor(ProcessOptions{Command: []string{"/nonexistent/worker"}})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), "package main\nimport \"os\"\n", sampleDoc())
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureLoad, f.Kind)
}

func TestProcessExecutor_InfiniteLoopTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := `package main

import "stmt"

func Parse(doc stmt.Document) (*stmt.Table, error) {
	n := 0
	for {
		n++
	}
	return stmt.NewTable(), nil
}
`
	start := time.Now()
	_, err := newTestExecutor(t, 200*time.Millisecond).Execute(context.Background(), src, sampleDoc())
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureTimeout, f.Kind)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestProcessExecutor_Crash(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := newTestExecutor(t, 5*time.Second, workerEnv+"_CRASH=1")
	_, err := p.Execute(context.Background(), lineRoutine, sampleDoc())
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureCrash, f.Kind)
	assert.Contains(t, f.Trace, "worker exploded")
}

func TestProcessExecutor_StartFailure(t *testing.T) {
	p, err := NewProcessExecutor(ProcessOptions{Command: []string{"/nonexistent/worker"}})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), lineRoutine, sampleDoc())
	f, ok := AsFailure(err)
	require.True(t, ok)
	assert.Equal(t, FailureCrash, f.Kind)
}

func TestProcessExecutor_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	src := `package main

import (
	"time"

	"stmt"
)

func Parse(doc stmt.Document) (*stmt.Table, error) {
	time.Sleep(10 * time.Second)
	return stmt.NewTable(), nil
}
`
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := newTestExecutor(t, 30*time.Second).Execute(ctx, src, sampleDoc())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	_, isFailure := AsFailure(err)
	assert.False(t, isFailure)
}

func TestFailureFromRPC(t *testing.T) {
	f := failureFromRPC(&RPCError{Code: codeTimeout, Message: "slow", Data: "trace"})
	assert.Equal(t, &Failure{Kind: FailureTimeout, Message: "slow", Trace: "trace"}, f)

	f = failureFromRPC(&RPCError{Code: codeMethodNotFound, Message: "unknown method: x"})
	assert.Equal(t, FailureCrash, f.Kind)
}

var _ Executor = (*ProcessExecutor)(nil)
var _ Executor = (*Interpreter)(nil)
