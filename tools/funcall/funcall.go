// Package funcall adapts lumen tools to function-calling agents: each tool is
// described by a name, a description and a JSON-schema parameter object, and
// invoked with a JSON arguments document.
package funcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"lumen.dev/sdk/tools"
)

// InputParam is the single argument every registered function takes.
const InputParam = "input"

// ErrUnknownFunction is returned by Call for names that were never registered.
var ErrUnknownFunction = errors.New("funcall: unknown function")

// ErrInvalidArguments is returned by Call when the arguments are not a JSON
// object with a string input.
var ErrInvalidArguments = errors.New("funcall: invalid arguments")

// Definition is the function description handed to the agent.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

var inputSchema = json.RawMessage(`{"type":"object","properties":{"input":{"type":"string","description":"Free-text input for the tool."}}}`)

type function struct {
	def     Definition
	handler tools.Handler
}

// Registry holds callable functions. The zero value is not usable; use New.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]function
}

var _ tools.Registrar = (*Registry)(nil)

// New returns an empty registry.
func New() *Registry {
	return &Registry{fns: make(map[string]function)}
}

// Register implements tools.Registrar.
func (r *Registry) Register(name, description string, h tools.Handler) error {
	if err := tools.ValidateRegistration(name, h); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fns[name]; ok {
		return fmt.Errorf("%w: duplicate name %q", tools.ErrInvalidRegistration, name)
	}
	r.fns[name] = function{
		def:     Definition{Name: name, Description: description, Parameters: inputSchema},
		handler: h,
	}
	return nil
}

// Definitions returns the registered functions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.fns))
	for _, fn := range r.fns {
		defs = append(defs, fn.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Call invokes name with a JSON arguments object such as {"input":"note"}.
// Empty arguments are treated as {}.
func (r *Registry) Call(ctx context.Context, name string, arguments []byte) (string, error) {
	r.mu.RLock()
	fn, ok := r.fns[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}

	input, err := parseInput(arguments)
	if err != nil {
		return "", err
	}
	return fn.handler(ctx, input)
}

func parseInput(arguments []byte) (string, error) {
	if len(arguments) == 0 {
		return "", nil
	}

	var args map[string]json.RawMessage
	if err := json.Unmarshal(arguments, &args); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	raw, ok := args[InputParam]
	if !ok || string(raw) == "null" {
		return "", nil
	}

	var input string
	if err := json.Unmarshal(raw, &input); err != nil {
		return "", fmt.Errorf("%w: %q must be a string", ErrInvalidArguments, InputParam)
	}
	return input, nil
}
