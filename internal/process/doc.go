// Package process launches MCP server programs as child processes.
//
// A server is started from a filesystem path. The interpreter is chosen from
// the file extension: ".js" runs under node and everything else under the
// Python launcher by default, and both are configurable. Interpreter strings
// may carry arguments ("uv run" or "py -3"); they are split on whitespace and
// the server path is appended last.
//
// The Spawner interface is the seam between sessions and the operating
// system. ExecSpawner is the production implementation; tests substitute a
// spawner whose processes are backed by in-memory pipes.
package process
