// Package tools exposes lumen writes to agent frameworks. The handlers here
// hold all tool behavior; framework adapters (funcall, simpletool) only adapt
// registration and invocation.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/canon"
	"lumen.dev/sdk/client"
	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/topics"
)

var logger = log.New("lumen-tools")

// Tool names and descriptions registered by RegisterDefaults.
const (
	HeartbeatName        = "lumen_heartbeat"
	HeartbeatDescription = "Sends a heartbeat signal to the LUMEN ledger to prove agent liveness. Input: a short note."

	WriteContextName        = "lumen_write_context"
	WriteContextDescription = "Writes a permanent record (context) to the LUMEN ledger. Use this to save logs, requests, or receipts. Input: the text to record."
)

// ErrInvalidRegistration is returned by registrars for empty names, nil
// handlers or duplicate names.
var ErrInvalidRegistration = errors.New("tools: invalid registration")

// Handler runs a tool on free-text input and returns a human-readable result.
type Handler func(ctx context.Context, input string) (string, error)

// Registrar is the one capability an agent framework adapter provides.
type Registrar interface {
	Register(name, description string, h Handler) error
}

// Writer is the part of client.Client the tools use.
type Writer interface {
	Heartbeat(ctx context.Context, note string) (*client.Result, error)
	Write(ctx context.Context, topic string, payload canon.Value) (*client.Result, error)
}

var _ Writer = (*client.Client)(nil)

// HeartbeatHandler writes a heartbeat with the input as its note, falling
// back to defaultNote for blank input.
func HeartbeatHandler(w Writer, defaultNote string) Handler {
	return func(ctx context.Context, input string) (string, error) {
		note := strings.TrimSpace(input)
		if note == "" {
			note = defaultNote
		}

		res, err := w.Heartbeat(ctx, note)
		if err != nil {
			logger.Warn("Heartbeat tool failed", logfields.WithTool(HeartbeatName), log.WithError(err))
			return "", err
		}

		return fmt.Sprintf("Heartbeat confirmed. Tx: %s", res.Handle), nil
	}
}

// ContextPayload is the payload WriteContextHandler commits for input.
func ContextPayload(input string) canon.Map {
	return canon.Map{
		"v":    canon.String("0.1"),
		"kind": canon.String("context"),
		"text": canon.String(input),
	}
}

// WriteContextHandler commits the input text under topic.
func WriteContextHandler(w Writer, topic string) Handler {
	return func(ctx context.Context, input string) (string, error) {
		if strings.TrimSpace(input) == "" {
			return "", fmt.Errorf("%s: input text is required", WriteContextName)
		}

		res, err := w.Write(ctx, topic, ContextPayload(input))
		if err != nil {
			logger.Warn("Write context tool failed", logfields.WithTool(WriteContextName), logfields.WithTopic(topic), log.WithError(err))
			return "", err
		}

		return fmt.Sprintf("Context written to LUMEN (seq %d). Tx: %s", res.Record.Sequence, res.Handle), nil
	}
}

// Options tune RegisterDefaults.
type Options struct {
	// HeartbeatNote is used when the agent passes no note. Default "alive".
	HeartbeatNote string
	// ContextTopic is the topic for lumen_write_context. Default lumen.v0.job.request.
	ContextTopic string
}

// RegisterDefaults registers the heartbeat and write-context tools.
func RegisterDefaults(r Registrar, w Writer, opts Options) error {
	if opts.HeartbeatNote == "" {
		opts.HeartbeatNote = client.DefaultHeartbeatNote
	}
	if opts.ContextTopic == "" {
		opts.ContextTopic = topics.JobRequest
	}

	if err := r.Register(HeartbeatName, HeartbeatDescription, HeartbeatHandler(w, opts.HeartbeatNote)); err != nil {
		return err
	}
	return r.Register(WriteContextName, WriteContextDescription, WriteContextHandler(w, opts.ContextTopic))
}

// ValidateRegistration checks the arguments every Registrar receives.
func ValidateRegistration(name string, h Handler) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRegistration)
	}
	if h == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrInvalidRegistration, name)
	}
	return nil
}
