package lessonscan

import (
	"io"
	"log/slog"

	"github.com/hazyhaar/a11ywatch/lessonscan/internal/sink"
)

// Sink is the output interface for session events.
type Sink = sink.Sink

// SinkFunc is called for each event by a callback sink.
type SinkFunc = sink.Func

// Hub fans events out to live subscribers.
type Hub = sink.Hub

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, retries int, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookRetries(retries), sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink.
func NewCallbackSink(fn SinkFunc) Sink {
	return sink.NewCallback(fn)
}

// NewHub creates an empty subscriber hub.
func NewHub(logger *slog.Logger) *Hub {
	return sink.NewHub(logger)
}

// NewRouter fans every event out to sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) Sink {
	return sink.NewRouter(logger, sinks...)
}
