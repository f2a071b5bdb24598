// Package tracing wires Langfuse tracing into the chat completion path via
// eino's global callback handlers.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/pdfrag-go/internal/config"
)

// Setup builds the Langfuse callback handler when both keys are set. It
// returns the handler, a flush function that must be called before process
// exit so buffered traces are sent, and whether tracing is enabled. When
// Langfuse is not configured the handler and flush function are nil.
func Setup(t config.Tracing) (callbacks.Handler, func(), bool) {
	if !t.Enabled() {
		return nil, nil, false
	}
	host := t.Host
	if host == "" {
		host = config.DefaultLangfuseHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: t.PublicKey,
		SecretKey: t.SecretKey,
	})
	return handler, flusher, true
}

// Install registers the Langfuse handler globally so every chat completion
// is traced. It returns a flush function that is safe to call when tracing
// is disabled.
func Install(t config.Tracing) func() {
	handler, flush, ok := Setup(t)
	if !ok {
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	return flush
}
