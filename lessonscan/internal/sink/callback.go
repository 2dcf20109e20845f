package sink

import (
	"context"

	"github.com/hazyhaar/a11ywatch/finding"
)

// Func receives events in-process.
type Func func(ctx context.Context, ev finding.Event) error

// Callback delivers events through a Go function call, for embedding the
// coordinator in another binary.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. A nil fn discards events.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, ev finding.Event) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, ev)
}

func (c *Callback) Close() error { return nil }
