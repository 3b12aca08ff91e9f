// Package simpletool adapts lumen tools to agent frameworks that model a tool
// as a name, a description and a run method over a single text input.
package simpletool

import (
	"context"
	"fmt"
	"sync"

	"lumen.dev/sdk/tools"
)

// Heartbeat tool defaults.
const (
	HeartbeatToolName        = "Lumen Heartbeat"
	HeartbeatToolDescription = "Sends a heartbeat signal to the LUMEN ledger to prove agent liveness."
	HeartbeatToolNote        = "working"
)

// Tool is a single named capability.
type Tool struct {
	Name        string
	Description string

	handler tools.Handler
}

// New returns a tool backed by h.
func New(name, description string, h tools.Handler) (*Tool, error) {
	if err := tools.ValidateRegistration(name, h); err != nil {
		return nil, err
	}
	return &Tool{Name: name, Description: description, handler: h}, nil
}

// NewHeartbeatTool returns the stand-alone heartbeat tool. Blank input sends
// the note "working".
func NewHeartbeatTool(w tools.Writer) *Tool {
	return &Tool{
		Name:        HeartbeatToolName,
		Description: HeartbeatToolDescription,
		handler:     tools.HeartbeatHandler(w, HeartbeatToolNote),
	}
}

// Run invokes the tool.
func (t *Tool) Run(ctx context.Context, input string) (string, error) {
	return t.handler(ctx, input)
}

// Call invokes the tool and folds any error into the returned text, for
// frameworks whose tools cannot fail.
func (t *Tool) Call(ctx context.Context, input string) string {
	out, err := t.Run(ctx, input)
	if err != nil {
		return fmt.Sprintf("Error running %s: %v", t.Name, err)
	}
	return out
}

// Toolbox collects tools in registration order.
type Toolbox struct {
	mu    sync.RWMutex
	tools []*Tool
}

var _ tools.Registrar = (*Toolbox)(nil)

// Register implements tools.Registrar.
func (b *Toolbox) Register(name, description string, h tools.Handler) error {
	t, err := New(name, description, h)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.tools {
		if existing.Name == name {
			return fmt.Errorf("%w: duplicate name %q", tools.ErrInvalidRegistration, name)
		}
	}
	b.tools = append(b.tools, t)
	return nil
}

// Tools returns the registered tools.
func (b *Toolbox) Tools() []*Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]*Tool(nil), b.tools...)
}

// Get returns the tool called name.
func (b *Toolbox) Get(name string) (*Tool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, t := range b.tools {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}
