// Package store persists the desk's client-side state as JSON documents
// keyed by trader namespace and document kind. Implementations include
// PostgreSQL, SQLite, Redis (direct or as a read-through cache) and
// in-memory (for testing).
package store

import (
	"context"
	"errors"
	"fmt"
)

// Kind names one persisted document of a trader's desk.
type Kind string

const (
	KindTrades   Kind = "trades"
	KindPending  Kind = "pending"
	KindAlerts   Kind = "alerts"
	KindSettings Kind = "settings"
	KindMarket   Kind = "market"
)

// ErrNotFound is returned by Get when no document exists.
var ErrNotFound = errors.New("store: document not found")

// Store is the persistence interface. Documents are opaque JSON bytes.
type Store interface {
	// Get returns the document, or ErrNotFound.
	Get(ctx context.Context, namespace string, kind Kind) ([]byte, error)

	// Put replaces the document.
	Put(ctx context.Context, namespace string, kind Kind, data []byte) error

	// Delete removes the document. Deleting a missing document is not an
	// error.
	Delete(ctx context.Context, namespace string, kind Kind) error
}

func docKey(namespace string, kind Kind) string {
	return fmt.Sprintf("desk:%s:%s", namespace, kind)
}
