// ABOUTME: In-memory child processes for tests, backed by io.Pipe pairs
// ABOUTME: Includes a scripted MCP server that answers the handshake and catalog requests

// Package processtest provides fake child processes for tests.
package processtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/yashraj-dudhe/mcp-client/internal/jsonrpc"
	"github.com/yashraj-dudhe/mcp-client/internal/process"
	"github.com/yashraj-dudhe/mcp-client/internal/transport"
)

// ErrKilled is what Wait returns after Kill.
var ErrKilled = errors.New("signal: killed")

// Process is a fake child. The test plays the server side through
// ReadFrame, Send and SendStderr.
type Process struct {
	cmd process.Command

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	frames  *transport.LineReader

	exitOnce sync.Once
	exited   chan struct{}
	exitErr  error

	mu       sync.Mutex
	received []jsonrpc.Message
}

// NewProcess returns a running fake child.
func NewProcess(cmd process.Command) *Process {
	p := &Process{cmd: cmd, exited: make(chan struct{})}
	p.stdinR, p.stdinW = io.Pipe()
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	p.frames = transport.NewLineReader(p.stdinR)
	return p
}

func (p *Process) Stdin() io.WriteCloser { return p.stdinW }
func (p *Process) Stdout() io.Reader     { return p.stdoutR }
func (p *Process) Stderr() io.Reader     { return p.stderrR }
func (p *Process) Pid() int              { return 0 }

// Command returns the command the fake was spawned with.
func (p *Process) Command() process.Command { return p.cmd }

func (p *Process) Wait() error {
	<-p.exited
	return p.exitErr
}

func (p *Process) Kill() error {
	p.Exit(ErrKilled)
	return nil
}

// Exit ends the fake child with err as its exit status.
func (p *Process) Exit(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		p.stdoutW.Close()
		p.stderrW.Close()
		p.stdinR.CloseWithError(io.ErrClosedPipe)
		close(p.exited)
	})
}

// BreakStdout makes the client's next stdout read fail with err while the
// child keeps running.
func (p *Process) BreakStdout(err error) {
	p.stdoutW.CloseWithError(err)
}

// BreakStderr makes the client's next stderr read fail with err.
func (p *Process) BreakStderr(err error) {
	p.stderrW.CloseWithError(err)
}

// Exited is closed once the child has exited.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ReadFrame returns the next frame the client wrote to stdin.
func (p *Process) ReadFrame() (jsonrpc.Message, error) {
	line, err := p.frames.Next()
	if err != nil {
		return jsonrpc.Message{}, err
	}
	msg := jsonrpc.Decode(line)
	p.mu.Lock()
	p.received = append(p.received, msg)
	p.mu.Unlock()
	return msg, nil
}

// Received returns every frame read so far.
func (p *Process) Received() []jsonrpc.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]jsonrpc.Message(nil), p.received...)
}

// Methods returns the method of every frame read so far.
func (p *Process) Methods() []string {
	var methods []string
	for _, m := range p.Received() {
		methods = append(methods, m.Method)
	}
	return methods
}

// Send writes raw text to the child's stdout. It blocks until the client
// reads it.
func (p *Process) Send(text string) error {
	_, err := io.WriteString(p.stdoutW, text)
	return err
}

// SendStderr writes raw text to the child's stderr.
func (p *Process) SendStderr(text string) error {
	_, err := io.WriteString(p.stderrW, text)
	return err
}

// Reply answers a request with a result.
func (p *Process) Reply(id *jsonrpc.ID, result any) error {
	frame, err := jsonrpc.Encode(jsonrpc.NewResult(id, result))
	if err != nil {
		return err
	}
	return p.Send(string(frame))
}

// Spawner hands out fake children. OnSpawn, when set, runs in its own
// goroutine for every new child and usually plays the server.
type Spawner struct {
	OnSpawn func(*Process)
	Err     error

	mu    sync.Mutex
	procs []*Process
}

// Spawn implements process.Spawner.
func (s *Spawner) Spawn(ctx context.Context, cmd process.Command) (process.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}

	p := NewProcess(cmd)
	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()

	if s.OnSpawn != nil {
		go s.OnSpawn(p)
	}
	return p, nil
}

// Processes returns every child spawned so far.
func (s *Spawner) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.procs...)
}

// Server is a scripted MCP server.
type Server struct {
	// Tools, Resources and Prompts are returned by the list methods.
	Tools     []map[string]any
	Resources []map[string]any
	Prompts   []map[string]any
	// InitError, when set, answers initialize with this error.
	InitError *jsonrpc.Error
	// SkipInit leaves initialize unanswered.
	SkipInit bool
}

// Serve answers requests until the client closes stdin or the child exits.
// tools/call echoes its arguments back as text content.
func (srv Server) Serve(p *Process) {
	for {
		msg, err := p.ReadFrame()
		if err != nil {
			return
		}
		if msg.Kind != jsonrpc.KindRequest {
			continue
		}
		if err := srv.answer(p, msg); err != nil {
			return
		}
	}
}

func (srv Server) answer(p *Process, msg jsonrpc.Message) error {
	switch msg.Method {
	case "initialize":
		if srv.SkipInit {
			return nil
		}
		if srv.InitError != nil {
			frame, err := jsonrpc.Encode(&jsonrpc.Response{JSONRPC: jsonrpc.Version, ID: msg.ID, Error: srv.InitError})
			if err != nil {
				return err
			}
			return p.Send(string(frame))
		}
		return p.Reply(msg.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "fake", "version": "0.0.1"},
		})
	case "tools/list":
		return p.Reply(msg.ID, map[string]any{"tools": nonNil(srv.Tools)})
	case "resources/list":
		return p.Reply(msg.ID, map[string]any{"resources": nonNil(srv.Resources)})
	case "prompts/list":
		return p.Reply(msg.ID, map[string]any{"prompts": nonNil(srv.Prompts)})
	case "resources/read":
		var params struct {
			URI string `json:"uri"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		return p.Reply(msg.ID, map[string]any{
			"contents": []map[string]any{{"uri": params.URI, "text": "contents of " + params.URI}},
		})
	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		return p.Reply(msg.ID, map[string]any{
			"content": []map[string]any{{"type": "text", "text": fmt.Sprintf("%s %s", params.Name, params.Arguments)}},
		})
	default:
		frame, err := jsonrpc.Encode(jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeMethodNotFound, "method not found"))
		if err != nil {
			return err
		}
		return p.Send(string(frame))
	}
}

func nonNil(items []map[string]any) []map[string]any {
	if items == nil {
		return []map[string]any{}
	}
	return items
}
