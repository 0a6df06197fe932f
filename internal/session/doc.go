// Package session supervises MCP server child processes.
//
// # Overview
//
// A Session is the live binding to one child process: its lifecycle state,
// its most recent tool, resource and prompt catalogs, and the id of the last
// request still awaiting a reply. The Manager owns every Session and is the
// entry point for the request layer.
//
//	mgr := session.NewManager(process.ExecSpawner{}, broadcaster, opts, logger)
//	id, err := mgr.Connect(ctx, "/path/to/server.py")
//	err = mgr.WaitReady(ctx, id)
//	reqID, err := mgr.ListTools(id)
//
// # Handshake
//
// States move forward only:
//
//	Connecting -> AwaitingInitResult -> AwaitingInitializedAck -> Ready
//
// Failed and Closed are terminal and reachable from any non-terminal state.
// Connect spawns the child, writes the initialize request with the fixed id
// jsonrpc.InitializeID and returns without waiting. When the initialize
// response arrives with a result, exactly one notifications/initialized is
// written; once that write has been flushed (plus Options.SettleDelay, if
// configured) the session is Ready. An error response to initialize, a
// child exit or a missed Options.HandshakeTimeout move the session to
// Failed and kill the child.
//
// # Commands
//
// ListTools, ListResources, ListPrompts, CallTool and ReadResource are fire
// and forget: they return once the request frame is written. The eventual
// response reaches callers through the broadcast fan-out, never as a return
// value. A command on a session that is not Ready fails with
// ErrNotInitialized and nothing is written; an unknown id fails with
// ErrSessionNotFound.
//
// # Concurrency
//
// Each session has one goroutine reading its stdout, so inbound frames are
// handled strictly in arrival order. Outbound frames go through a serialized
// writer. Sessions share nothing but the Manager's registry, which is guarded
// by a read/write mutex, so a stalled handshake on one session never delays
// another.
package session
