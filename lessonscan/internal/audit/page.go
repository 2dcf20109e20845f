package audit

import "context"

// Page is the document handle the in-browser passes evaluate against.
// Eval returns the JSON encoding of the script's (awaited) return value.
type Page interface {
	Eval(ctx context.Context, js string, args ...any) ([]byte, error)
	AddScript(ctx context.Context, source string) error
}
