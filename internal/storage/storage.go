package storage

import (
	"context"
	"errors"

	"notification/internal/domain/models"
)

var (
	// ErrTransient marks failures that are expected to clear on their own:
	// lost connections, lock contention, serialization conflicts, timeouts.
	ErrTransient = errors.New("transient storage failure")
)

// SaveResult tells whether SaveEvent created a row or found one already stored
// under the same key.
type SaveResult int

const (
	Inserted SaveResult = iota + 1
	AlreadyPresent
)

func (r SaveResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case AlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

type Storage interface {
	SaveEvent(ctx context.Context, event models.ProcessedEvent) (SaveResult, error)
}
