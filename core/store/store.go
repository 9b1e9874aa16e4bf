// Package store defines the document store boundary: a remote,
// collection-oriented store supporting per-document CRUD, field-level partial
// updates, and push-based live queries. The rest of the application depends
// only on this interface; concrete implementations live in the memory and
// sqlite packages.
package store

import (
	"context"
	"errors"

	"github.com/academiafc/clubsync/core/document"
)

// ErrNotFound is returned by Update when the target document does not exist.
// Delete is deliberately no-op-safe and never returns it.
var ErrNotFound = errors.New("store: document not found")

// SortField identifies which convention field a subscription sorts by.
type SortField string

const (
	SortByCreatedAt SortField = document.FieldCreatedAt
	SortByOrder     SortField = document.FieldOrder
)

// SortDirection specifies the direction for sorting.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortSpec asks the store to deliver subscription snapshots pre-sorted. A nil
// SortSpec delivers documents in store order; the subscriber sorts locally.
type SortSpec struct {
	Field     SortField
	Direction SortDirection
}

// FieldUpdate is one half of an atomic pair write: a partial update targeting
// a single document.
type FieldUpdate struct {
	ID     string
	Fields document.Fields
}

// Subscription is a live query over one collection. Every change to the
// collection delivers a complete, freshly-sorted document list on Snapshots;
// the channel carries full result sets, never diffs, so a later delivery
// always supersedes an earlier one.
type Subscription interface {
	// Snapshots yields the full document list on the initial delivery and on
	// every subsequent change. The channel is closed after Cancel.
	Snapshots() <-chan []document.Document

	// Errors yields store-level subscription failures (network loss,
	// permission denial). Receivers log and keep their last good snapshot.
	Errors() <-chan error

	// Cancel tears the subscription down and releases the store resource.
	// It is idempotent, and no delivery follows once it returns.
	Cancel()
}

// DocumentStore is the consumed boundary contract over the remote store.
// Collection names are relative; implementations namespace them under an
// opaque application path prefix.
type DocumentStore interface {
	// Subscribe opens a live query over the named collection.
	Subscribe(ctx context.Context, collection string, sort *SortSpec) (Subscription, error)

	// Create writes a new document, assigning its id and createdAt, and
	// returns the assigned id.
	Create(ctx context.Context, collection string, fields document.Fields) (string, error)

	// Update applies a field-level partial update. Fields not named are
	// never touched.
	Update(ctx context.Context, collection, id string, fields document.Fields) error

	// Delete removes the document. Deleting a missing id is a no-op.
	Delete(ctx context.Context, collection, id string) error

	// UpdatePair applies two partial updates atomically: either both
	// documents change or neither does. Used for order swaps.
	UpdatePair(ctx context.Context, collection string, a, b FieldUpdate) error
}
