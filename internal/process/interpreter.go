// ABOUTME: Maps an MCP server path to the interpreter command that runs it
// ABOUTME: Selection is by file extension with a configurable fallback

package process

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrEmptyPath is returned when no server path is given.
var ErrEmptyPath = errors.New("server path is empty")

// ErrNoInterpreter is returned when the resolved interpreter string is blank.
var ErrNoInterpreter = errors.New("no interpreter configured")

// Command describes a program invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Interpreters selects an interpreter per file extension.
type Interpreters struct {
	// Extensions maps a lower-case extension including the dot to an
	// interpreter command line.
	Extensions map[string]string
	// Fallback is used when no extension matches.
	Fallback string
}

// DefaultInterpreters runs JavaScript under node and everything else under
// python3.
func DefaultInterpreters() Interpreters {
	return Interpreters{
		Extensions: map[string]string{".js": "node"},
		Fallback:   "python3",
	}
}

// CommandFor returns the command that runs the server at path.
func (in Interpreters) CommandFor(path string) (Command, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Command{}, ErrEmptyPath
	}

	interp := in.Fallback
	if v, ok := in.Extensions[strings.ToLower(filepath.Ext(path))]; ok {
		interp = v
	}

	fields := strings.Fields(interp)
	if len(fields) == 0 {
		return Command{}, ErrNoInterpreter
	}

	args := append(fields[1:len(fields):len(fields)], path)
	return Command{Name: fields[0], Args: args}, nil
}
