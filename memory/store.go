// Package memory provides an in-process implementation of the document store
// boundary with full live-query support. It backs tests and local
// development; semantics mirror the remote store: ids and creation
// timestamps are store-assigned, subscriptions deliver complete snapshots,
// and a newer pending snapshot always supersedes an older one.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/academiafc/clubsync/core/document"
	"github.com/academiafc/clubsync/core/store"
)

// Store is an in-memory DocumentStore. The zero value is not usable; create
// one with NewStore.
type Store struct {
	logger *zap.Logger

	mu   sync.Mutex
	docs map[string]map[string]document.Document
	seq  map[string]map[string]int64
	next int64
	subs map[string]map[*subscription]struct{}

	// now is swappable so tests can pin server-assigned timestamps.
	now func() time.Time
}

var _ store.DocumentStore = (*Store)(nil)

// NewStore creates an empty in-memory store. A nil logger falls back to a
// no-op logger.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger: logger,
		docs:   make(map[string]map[string]document.Document),
		seq:    make(map[string]map[string]int64),
		subs:   make(map[string]map[*subscription]struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the server timestamp source. Test helper.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Create assigns an id and createdAt and stores the document.
func (s *Store) Create(ctx context.Context, collection string, fields document.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	doc := make(document.Document, len(fields)+2)
	for k, v := range fields {
		doc[k] = v
	}
	doc[document.FieldID] = id
	doc[document.FieldCreatedAt] = s.now()

	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]document.Document)
		s.seq[collection] = make(map[string]int64)
	}
	s.docs[collection][id] = doc
	s.next++
	s.seq[collection][id] = s.next

	s.broadcast(collection)
	return id, nil
}

// Update applies a field-level partial update. Fields not named are left
// untouched. Returns store.ErrNotFound for a missing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields document.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return fmt.Errorf("collection '%s' id '%s': %w", collection, id, store.ErrNotFound)
	}
	for k, v := range fields {
		doc[k] = v
	}
	s.broadcast(collection)
	return nil
}

// Delete removes the document. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[collection][id]; !ok {
		return nil
	}
	delete(s.docs[collection], id)
	delete(s.seq[collection], id)
	s.broadcast(collection)
	return nil
}

// UpdatePair applies both partial updates under one lock: either both
// documents change or neither does, and subscribers observe a single push.
func (s *Store) UpdatePair(ctx context.Context, collection string, a, b store.FieldUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docA, okA := s.docs[collection][a.ID]
	docB, okB := s.docs[collection][b.ID]
	if !okA || !okB {
		return fmt.Errorf("collection '%s' pair (%s, %s): %w", collection, a.ID, b.ID, store.ErrNotFound)
	}
	for k, v := range a.Fields {
		docA[k] = v
	}
	for k, v := range b.Fields {
		docB[k] = v
	}
	s.broadcast(collection)
	return nil
}

// Subscribe opens a live query. The initial snapshot is delivered
// immediately; every mutation to the collection delivers a fresh one.
func (s *Store) Subscribe(ctx context.Context, collection string, spec *store.SortSpec) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscription{
		owner:      s,
		collection: collection,
		spec:       spec,
		snapshots:  make(chan []document.Document, 1),
		errs:       make(chan error, 1),
	}
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[*subscription]struct{})
	}
	s.subs[collection][sub] = struct{}{}

	sub.push(s.snapshotLocked(collection, spec))
	return sub, nil
}

// broadcast pushes the collection's current content to every subscriber.
// Caller holds s.mu.
func (s *Store) broadcast(collection string) {
	for sub := range s.subs[collection] {
		sub.push(s.snapshotLocked(collection, sub.spec))
	}
}

// snapshotLocked clones and sorts the collection per the subscription's sort
// spec. Caller holds s.mu.
func (s *Store) snapshotLocked(collection string, spec *store.SortSpec) []document.Document {
	byID := s.docs[collection]
	out := make([]document.Document, 0, len(byID))
	for _, doc := range byID {
		out = append(out, document.Clone(doc))
	}

	switch {
	case spec != nil && spec.Field == store.SortByOrder:
		sort.SliceStable(out, func(i, j int) bool {
			a := document.OrderOf(out[i], 0)
			b := document.OrderOf(out[j], 0)
			if spec.Direction == store.SortDesc {
				return a > b
			}
			return a < b
		})
	case spec != nil && spec.Field == store.SortByCreatedAt:
		sort.SliceStable(out, func(i, j int) bool {
			a := document.CreatedAtOf(out[i])
			b := document.CreatedAtOf(out[j])
			if spec.Direction == store.SortDesc {
				return a.After(b)
			}
			return a.Before(b)
		})
	default:
		// Insertion order keeps unspecified subscriptions deterministic.
		seq := s.seq[collection]
		sort.SliceStable(out, func(i, j int) bool {
			return seq[document.IDOf(out[i])] < seq[document.IDOf(out[j])]
		})
	}
	return out
}

type subscription struct {
	owner      *Store
	collection string
	spec       *store.SortSpec
	snapshots  chan []document.Document
	errs       chan error
	closed     bool
}

var _ store.Subscription = (*subscription)(nil)

func (sub *subscription) Snapshots() <-chan []document.Document { return sub.snapshots }
func (sub *subscription) Errors() <-chan error                  { return sub.errs }

// push delivers latest-wins: a stale pending snapshot is dropped in favor of
// the new one. Caller holds the store mutex, which also excludes Cancel, so
// push never races a channel close.
func (sub *subscription) push(docs []document.Document) {
	if sub.closed {
		return
	}
	for {
		select {
		case sub.snapshots <- docs:
			return
		default:
			select {
			case <-sub.snapshots:
			default:
			}
		}
	}
}

// Cancel removes the subscription and closes its channels. Idempotent; no
// delivery follows once it returns, so a pending buffered snapshot is
// discarded rather than left for a post-cancel receive.
func (sub *subscription) Cancel() {
	sub.owner.mu.Lock()
	defer sub.owner.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	delete(sub.owner.subs[sub.collection], sub)
	select {
	case <-sub.snapshots:
	default:
	}
	select {
	case <-sub.errs:
	default:
	}
	close(sub.snapshots)
	close(sub.errs)
}
