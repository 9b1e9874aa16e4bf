// Package sync keeps local view state consistent with the remote document
// store. The Manager owns one live subscription per watched collection,
// converts every push into an ordered in-memory snapshot, and exposes the
// latest snapshot per collection to the rest of the application. Snapshots
// are replaced wholesale on every push; the Manager is their only writer.
package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/academiafc/clubsync/core/document"
	"github.com/academiafc/clubsync/core/store"
)

// SnapshotFunc receives the full ordered document sequence for a collection
// on the initial delivery and on every subsequent change.
type SnapshotFunc func(docs []document.Document)

// Gate is the authentication gate the Manager waits on before opening the
// primary subscriptions. OnSignedIn fires immediately with the current state
// and again on every transition; the returned function unsubscribes.
type Gate interface {
	OnSignedIn(fn func(signedIn bool)) func()
}

// Manager multiplexes live collection subscriptions over a DocumentStore.
type Manager struct {
	store  store.DocumentStore
	logger *zap.Logger

	mu        sync.RWMutex
	snapshots map[string][]document.Document

	openMu      sync.Mutex
	openHandles []func()
}

// NewManager creates a Manager over the given store. A nil logger falls back
// to a no-op logger.
func NewManager(st store.DocumentStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     st,
		logger:    logger,
		snapshots: make(map[string][]document.Document),
	}
}

// Subscribe opens a live subscription over the named collection and invokes
// onSnapshot with the sorted document sequence on every push. Order-bearing
// collections are delivered ascending by order (store-side sort); all others
// are sorted createdAt-descending locally, with a missing createdAt sorting
// as the oldest entry.
//
// The returned handle stops further callback invocations and releases the
// store resource; it is idempotent, and no callback fires after it returns.
// Subscription errors are logged and the last good snapshot is retained.
func (m *Manager) Subscribe(ctx context.Context, collection string, onSnapshot SnapshotFunc) (func(), error) {
	var spec *store.SortSpec
	if document.IsOrdered(collection) {
		spec = &store.SortSpec{Field: store.SortByOrder, Direction: store.SortAsc}
	}

	sub, err := m.store.Subscribe(ctx, collection, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to collection '%s': %w", collection, err)
	}

	w := &watcher{sub: sub}
	go m.run(collection, w, onSnapshot)
	return w.stop, nil
}

// watcher serializes snapshot delivery against teardown: the same mutex
// guards callback invocation and the closed flag, so once stop returns no
// further callback can be running or fire.
type watcher struct {
	sub    store.Subscription
	mu     sync.Mutex
	closed bool
}

func (w *watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.sub.Cancel()
}

func (m *Manager) run(collection string, w *watcher, onSnapshot SnapshotFunc) {
	snapshots := w.sub.Snapshots()
	errs := w.sub.Errors()
	for {
		select {
		case docs, ok := <-snapshots:
			if !ok {
				return
			}
			sorted := m.sortFor(collection, docs)
			w.mu.Lock()
			if w.closed {
				w.mu.Unlock()
				return
			}
			m.setSnapshot(collection, sorted)
			if onSnapshot != nil {
				onSnapshot(document.CloneAll(sorted))
			}
			w.mu.Unlock()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			m.logger.Warn("subscription error, keeping last snapshot",
				zap.String("collection", collection), zap.Error(err))
		}
	}
}

// sortFor applies the per-collection display order. Ordered collections are
// already sorted by the store and pass through unmodified.
func (m *Manager) sortFor(collection string, docs []document.Document) []document.Document {
	if document.IsOrdered(collection) {
		return docs
	}
	sorted := make([]document.Document, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return document.CreatedAtOf(sorted[i]).After(document.CreatedAtOf(sorted[j]))
	})
	return sorted
}

func (m *Manager) setSnapshot(collection string, docs []document.Document) {
	m.mu.Lock()
	m.snapshots[collection] = docs
	m.mu.Unlock()
}

// Snapshot returns a copy of the latest snapshot for the collection, or nil
// when nothing has been delivered yet. Callers may freely mutate the copy.
func (m *Manager) Snapshot(collection string) []document.Document {
	m.mu.RLock()
	docs := m.snapshots[collection]
	m.mu.RUnlock()
	if docs == nil {
		return nil
	}
	return document.CloneAll(docs)
}

// Count returns the number of documents in the latest snapshot for the
// collection. The mutation gateway uses it for append-to-end order values.
func (m *Manager) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots[collection])
}

// Open subscribes to all primary collections together. It is called once the
// auth gate resolves; a failure tears down the subscriptions already opened.
func (m *Manager) Open(ctx context.Context) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()
	if len(m.openHandles) > 0 {
		return nil
	}
	for _, collection := range document.PrimaryCollections {
		unsubscribe, err := m.Subscribe(ctx, collection, nil)
		if err != nil {
			m.closeLocked()
			return fmt.Errorf("failed to open primary subscriptions: %w", err)
		}
		m.openHandles = append(m.openHandles, unsubscribe)
	}
	m.logger.Info("primary subscriptions opened", zap.Int("collections", len(m.openHandles)))
	return nil
}

// Close tears down every subscription opened by Open. Safe to call more than
// once; retained snapshots survive so views keep their last good state.
func (m *Manager) Close() {
	m.openMu.Lock()
	defer m.openMu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	for _, unsubscribe := range m.openHandles {
		unsubscribe()
	}
	m.openHandles = nil
}

// Bind ties the Manager's lifecycle to the authentication gate: the primary
// subscriptions open when a user is present and close on sign-out. The
// returned function detaches from the gate (it does not close subscriptions).
func (m *Manager) Bind(ctx context.Context, gate Gate) func() {
	return gate.OnSignedIn(func(signedIn bool) {
		if signedIn {
			if err := m.Open(ctx); err != nil {
				m.logger.Error("failed to open subscriptions after sign-in", zap.Error(err))
			}
			return
		}
		m.Close()
	})
}

// BindCollection ties one extra collection's subscription to the gate, for
// feeds that live outside the primary set. Gate observers may fire
// concurrently, so the handle is guarded: at most one subscription is open at
// a time. The returned function detaches from the gate.
func (m *Manager) BindCollection(ctx context.Context, gate Gate, collection string) func() {
	var mu sync.Mutex
	var unsubscribe func()
	return gate.OnSignedIn(func(signedIn bool) {
		mu.Lock()
		defer mu.Unlock()
		if signedIn {
			if unsubscribe != nil {
				return
			}
			u, err := m.Subscribe(ctx, collection, nil)
			if err != nil {
				m.logger.Error("failed to subscribe after sign-in",
					zap.String("collection", collection), zap.Error(err))
				return
			}
			unsubscribe = u
			return
		}
		if unsubscribe != nil {
			unsubscribe()
			unsubscribe = nil
		}
	})
}
