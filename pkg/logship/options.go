package logship

import (
	"net/http"

	logAdapter "github.com/bft-labs/logship/internal/adapters/log"
	"github.com/bft-labs/logship/internal/clef"
	"github.com/bft-labs/logship/internal/ports"
)

// HTTPClient is the interface for making HTTP requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the interface for structured logging of the sink's own
// diagnostics.
type Logger = ports.Logger

// LogField represents a structured log field.
type LogField = ports.Field

// Option configures optional behavior of a Sink.
type Option func(*options)

// options holds the optional configuration for a Sink.
type options struct {
	httpClient   ports.HTTPClient
	logger       ports.Logger
	formatter    clef.Formatter
	eventHandler EventHandler
}

// defaultOptions returns options with sensible defaults.
func defaultOptions(client *http.Client) options {
	return options{
		httpClient: client,
		logger:     logAdapter.NewNoopLogger(),
		formatter:  clef.CompactFormatter{},
	}
}

// WithHTTPClient sets a custom HTTP client for the ingestion requests.
// If not provided, a default client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for the sink's diagnostics.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFormatter replaces the compact CLEF formatter used by Write.
func WithFormatter(f Formatter) Option {
	return func(o *options) {
		o.formatter = f
	}
}

// WithEventHandler sets a handler for sink events.
// Events are called synchronously from the shipping goroutine.
// If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}
