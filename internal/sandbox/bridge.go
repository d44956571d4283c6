package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cleared-dev/parsergen/internal/stmt"
)

// JSON-RPC 2.0 message types.

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      any    `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
// Result must NOT have omitempty; a null result is still a reply.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result"`
	Error   *RPCError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type rawMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// Error codes carried by worker responses.
const (
	codeParse          = -32700
	codeInvalidParams  = -32602
	codeMethodNotFound = -32601
	codeLoad           = -32001
	codeRuntime        = -32002
	codeTimeout        = -32003
)

var kindCodes = map[FailureKind]int{
	FailureLoad:    codeLoad,
	FailureRuntime: codeRuntime,
	FailureTimeout: codeTimeout,
}

func failureFromRPC(e *RPCError) *Failure {
	kind := FailureCrash
	for k, c := range kindCodes {
		if c == e.Code {
			kind = k
		}
	}
	return &Failure{Kind: kind, Message: e.Message, Trace: e.Data}
}

// RunParams is the payload of a "run" request.
type RunParams struct {
	Source         string        `json:"source"`
	Document       stmt.Document `json:"document"`
	AllowedImports []string      `json:"allowed_imports"`
	TimeoutMillis  int64         `json:"timeout_ms"`
}

// DefaultGrace is how long the parent waits past the routine timeout
// before killing the worker.
const DefaultGrace = 2 * time.Second

// ProcessOptions configures a ProcessExecutor.
type ProcessOptions struct {
	// Command is the worker argv. Defaults to this executable with the
	// sandbox-worker subcommand.
	Command        []string
	Env            []string
	Timeout        time.Duration
	Grace          time.Duration
	AllowedImports []string
	Logger         *zap.Logger
}

// ProcessExecutor runs each routine in a fresh worker process speaking
// JSON-RPC over stdin/stdout. A hung or crashing routine cannot take the
// parent down with it.
type ProcessExecutor struct {
	opts ProcessOptions
}

// NewProcessExecutor fills defaults and returns a ProcessExecutor.
func NewProcessExecutor(opts ProcessOptions) (*ProcessExecutor, error) {
	if len(opts.Command) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}
		opts.Command = []string{exe, "sandbox-worker"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.AllowedImports == nil {
		opts.AllowedImports = DefaultAllowedImports
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ProcessExecutor{opts: opts}, nil
}

// Execute starts a worker, runs source against doc, and stops the worker.
func (p *ProcessExecutor) Execute(ctx context.Context, source string, doc stmt.Document) (*stmt.Table, error) {
	// Reject bad source before paying for a process.
	if _, _, fail := CheckSource(source, p.opts.AllowedImports); fail != nil {
		return nil, fail
	}

	b, err := startBridge(p.opts.Command, p.opts.Env)
	if err != nil {
		return nil, &Failure{Kind: FailureCrash, Message: err.Error()}
	}
	defer func() {
		if err := b.Shutdown(); err != nil {
			p.opts.Logger.Debug("sandbox worker shutdown", zap.Error(err))
		}
	}()

	params := RunParams{
		Source:         source,
		Document:       doc,
		AllowedImports: p.opts.AllowedImports,
		TimeoutMillis:  p.opts.Timeout.Milliseconds(),
	}
	return b.run(ctx, params, p.opts.Timeout+p.opts.Grace)
}

// bridge manages one worker subprocess and its JSON-RPC traffic.
type bridge struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	reader  *bufio.Reader
	stderr  *boundedBuffer
	mu      sync.Mutex
	nextID  int
	pending map[int]chan *rawMessage
	done    chan struct{}

	waitOnce sync.Once
	waitErr  error
}

func startBridge(argv []string, env []string) (*bridge, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	if env != nil {
		cmd.Env = env
	}
	stderr := &boundedBuffer{limit: outputLimit}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	b := &bridge{
		cmd:     cmd,
		stdin:   stdin,
		reader:  bufio.NewReader(stdout),
		stderr:  stderr,
		pending: make(map[int]chan *rawMessage),
		done:    make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func (b *bridge) run(ctx context.Context, params RunParams, wait time.Duration) (*stmt.Table, error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	ch := make(chan *rawMessage, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	if err := b.send(Request{JSONRPC: "2.0", Method: "run", Params: params, ID: id}); err != nil {
		return nil, b.crash(fmt.Sprintf("sending request: %v", err))
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, failureFromRPC(msg.Error)
		}
		var table stmt.Table
		if err := json.Unmarshal(msg.Result, &table); err != nil {
			return nil, runtimeFailure("decoding result: %v", err)
		}
		return &table, nil
	case <-b.done:
		return nil, b.crash("worker exited before replying")
	case <-timer.C:
		b.kill()
		return nil, &Failure{Kind: FailureTimeout, Message: fmt.Sprintf("worker did not reply within %s", wait)}
	case <-ctx.Done():
		b.kill()
		return nil, ctx.Err()
	}
}

// crash reaps the worker so its stderr is complete before reporting.
func (b *bridge) crash(msg string) *Failure {
	b.kill()
	if err := b.wait(); err != nil {
		msg += " (" + err.Error() + ")"
	}
	f := &Failure{Kind: FailureCrash, Message: msg}
	f.appendTrace("stderr", b.stderr.String())
	return f
}

// Shutdown sends the shutdown notification, closes stdin and reaps the
// worker. A worker that does not exit promptly is killed.
func (b *bridge) Shutdown() error {
	_ = b.send(Request{JSONRPC: "2.0", Method: "shutdown"})
	_ = b.stdin.Close()

	select {
	case <-b.done:
	case <-time.After(DefaultGrace):
		b.kill()
		<-b.done
	}
	return b.wait()
}

func (b *bridge) wait() error {
	b.waitOnce.Do(func() { b.waitErr = b.cmd.Wait() })
	return b.waitErr
}

func (b *bridge) kill() {
	if b.cmd.Process != nil {
		_ = b.cmd.Process.Kill()
	}
}

func (b *bridge) send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	b.mu.Lock()
	_, err = fmt.Fprintf(b.stdin, "%s\n", data)
	b.mu.Unlock()
	return err
}

func (b *bridge) readLoop() {
	defer close(b.done)
	for {
		line, err := b.reader.ReadBytes('\n')
		if err != nil {
			return
		}

		var msg rawMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.Method != "" || (msg.Result == nil && msg.Error == nil) {
			continue
		}

		id := toInt(msg.ID)
		b.mu.Lock()
		ch, ok := b.pending[id]
		if ok {
			delete(b.pending, id)
		}
		b.mu.Unlock()
		if ok {
			ch <- &msg
		}
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

// errShutdown stops Serve after a shutdown notification.
var errShutdown = errors.New("shutdown requested")
