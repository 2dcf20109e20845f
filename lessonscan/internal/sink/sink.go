// Package sink delivers lesson scan events to observers.
package sink

import (
	"context"

	"github.com/hazyhaar/a11ywatch/finding"
)

// Sink is an event output. Implementations must tolerate concurrent Send
// calls but the coordinator emits from one goroutine, in order.
type Sink interface {
	Send(ctx context.Context, ev finding.Event) error
	Close() error
}
