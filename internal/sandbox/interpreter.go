package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"

	"github.com/cleared-dev/parsergen/internal/stmt"
)

// DefaultTimeout bounds a single execution.
const DefaultTimeout = 30 * time.Second

const outputLimit = 64 << 10

// Interpreter runs routines in-process with yaegi. Routines only see the
// allowed stdlib packages and stmt. A routine that ignores its deadline
// keeps its goroutine until it returns, so long-running callers should
// prefer ProcessExecutor.
type Interpreter struct {
	timeout time.Duration
	allowed []string
	symbols interp.Exports
}

// NewInterpreter returns an Interpreter. A zero timeout means DefaultTimeout;
// nil allowed means DefaultAllowedImports.
func NewInterpreter(timeout time.Duration, allowed []string) *Interpreter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if allowed == nil {
		allowed = DefaultAllowedImports
	}
	return &Interpreter{
		timeout: timeout,
		allowed: allowed,
		symbols: symbolsFor(allowed),
	}
}

type outcome struct {
	table *stmt.Table
	fail  *Failure
}

// Execute loads source and calls its Parse function with doc.
func (in *Interpreter) Execute(ctx context.Context, source string, doc stmt.Document) (*stmt.Table, error) {
	src, pkg, fail := CheckSource(source, in.allowed)
	if fail != nil {
		return nil, fail
	}

	runCtx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	output := &boundedBuffer{limit: outputLimit}
	i := interp.New(interp.Options{Stdout: output, Stderr: output})
	if err := i.Use(in.symbols); err != nil {
		return nil, fmt.Errorf("loading symbols: %w", err)
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{fail: &Failure{
					Kind:    FailureRuntime,
					Message: fmt.Sprintf("panic: %v", r),
					Trace:   string(debug.Stack()),
				}}
			}
		}()
		table, fail := in.run(runCtx, i, src, pkg, doc.Clone())
		done <- outcome{table: table, fail: fail}
	}()

	select {
	case out := <-done:
		if out.fail != nil {
			out.fail.appendTrace("output", output.String())
			return nil, out.fail
		}
		return out.table, nil
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f := &Failure{Kind: FailureTimeout, Message: fmt.Sprintf("execution exceeded %s", in.timeout)}
		f.appendTrace("output", output.String())
		return nil, f
	}
}

func (in *Interpreter) run(ctx context.Context, i *interp.Interpreter, src, pkg string, doc stmt.Document) (*stmt.Table, *Failure) {
	if _, err := i.EvalWithContext(ctx, src); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, &Failure{Kind: FailureTimeout, Message: err.Error()}
		}
		return nil, loadFailure("compile: %v", err)
	}

	v, err := i.EvalWithContext(ctx, pkg+"."+EntryPoint)
	if err != nil {
		return nil, loadFailure("entry point %s: %v", EntryPoint, err)
	}
	fn, ok := v.Interface().(func(stmt.Document) (*stmt.Table, error))
	if !ok {
		return nil, loadFailure("%s has type %s, want %s", EntryPoint, v.Type(), EntrySignature)
	}

	table, err := fn(doc)
	if err != nil {
		return nil, runtimeFailure("%v", err)
	}
	if table == nil {
		return nil, runtimeFailure("%s returned a nil table", EntryPoint)
	}
	return table, nil
}

// boundedBuffer keeps the first limit bytes written to it.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = len(p) > 0 || b.truncated
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[truncated]"
	}
	return b.buf.String()
}
