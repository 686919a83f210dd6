package processors

import (
	"context"
)

// Processor handles one queue body. An error wrapping models.ErrMalformedEvent
// means the body can never succeed; any other error is worth another try.
type Processor interface {
	ProcessEvent(ctx context.Context, body []byte) error
}

var _ Processor = (*EventProcessor)(nil)
