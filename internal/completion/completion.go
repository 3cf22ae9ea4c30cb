package completion

import (
	"context"
	"errors"
)

// ErrEmptyCompletion reports a provider response that carried no usable text.
var ErrEmptyCompletion = errors.New("completion returned no content")

// Role selects the chat role the rendered prompt is sent under.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Gateway is the single abstraction over a text completion call. The model
// identifier is caller-selectable per call; temperature and output length are
// fixed by the implementation.
type Gateway interface {
	Complete(ctx context.Context, prompt string, role Role, model string) (string, error)
}
