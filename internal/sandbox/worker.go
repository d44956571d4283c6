package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Serve answers JSON-RPC requests read from r until a shutdown
// notification, EOF or ctx ends. It is the body of the sandbox-worker
// command; replies go to w, which must be the process stdout.
func Serve(ctx context.Context, r io.Reader, w io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{w: w, logger: logger}
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if herr := s.handle(ctx, line); herr != nil {
				if errors.Is(herr, errShutdown) {
					return nil
				}
				return herr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading request: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type server struct {
	mu     sync.Mutex
	w      io.Writer
	logger *zap.Logger
}

func (s *server) handle(ctx context.Context, line []byte) error {
	var msg rawMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return s.reply(Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: codeParse, Message: "parse error: " + err.Error()},
		})
	}

	switch msg.Method {
	case "shutdown":
		return errShutdown
	case "run":
		var params RunParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.reply(Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()},
				ID:      msg.ID,
			})
		}
		return s.reply(s.run(ctx, msg.ID, params))
	default:
		return s.reply(Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: codeMethodNotFound, Message: "unknown method: " + msg.Method},
			ID:      msg.ID,
		})
	}
}

func (s *server) run(ctx context.Context, id any, params RunParams) Response {
	timeout := time.Duration(params.TimeoutMillis) * time.Millisecond
	in := NewInterpreter(timeout, params.AllowedImports)

	start := time.Now()
	table, err := in.Execute(ctx, params.Source, params.Document)
	s.logger.Debug("sandbox run",
		zap.Int("pages", len(params.Document.Pages)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		f, ok := AsFailure(err)
		if !ok {
			f = &Failure{Kind: FailureTimeout, Message: err.Error()}
		}
		code, ok := kindCodes[f.Kind]
		if !ok {
			code = codeRuntime
		}
		return Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: code, Message: f.Message, Data: f.Trace},
			ID:      id,
		}
	}
	return Response{JSONRPC: "2.0", Result: table, ID: id}
}

func (s *server) reply(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintf(s.w, "%s\n", data)
	return err
}
