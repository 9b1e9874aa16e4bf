// Package sqlite provides a concrete implementation of the document store
// boundary backed by SQLite. Documents are stored as JSON rows in a single
// table, namespaced by a collection path prefix; live queries are served by
// re-reading the collection whenever an in-process change event fires.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/academiafc/clubsync/core/document"
	"github.com/academiafc/clubsync/core/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT NOT NULL,
	id         TEXT NOT NULL,
	created_at TEXT NOT NULL,
	body       TEXT NOT NULL,
	PRIMARY KEY (path, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);
`

// Store is a SQLite-backed DocumentStore. Collection names are namespaced
// under an opaque path prefix (tenant/app identifier) so multiple
// applications can share one database file.
type Store struct {
	db         *sql.DB
	pathPrefix string
	logger     *zap.Logger
	bus        *events.TypedEventBus[string]
}

var _ store.DocumentStore = (*Store)(nil)

// NewStore opens (or creates) the database file and prepares the documents
// table. A nil logger falls back to a no-op logger.
func NewStore(dbPath, pathPrefix string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", dbPath, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare documents table: %w", err)
	}
	bus, err := events.NewTypedEventBus[string](events.DefaultConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not initialize change bus: %w", err)
	}
	return &Store{db: db, pathPrefix: pathPrefix, logger: logger, bus: bus}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) path(collection string) string {
	if s.pathPrefix == "" {
		return collection
	}
	return s.pathPrefix + "/" + collection
}

func (s *Store) changed(collection string) {
	s.bus.Emit(s.path(collection), collection)
}

// Create assigns an id and createdAt and inserts the document.
func (s *Store) Create(ctx context.Context, collection string, fields document.Fields) (string, error) {
	id := uuid.New().String()
	createdAt := time.Now().UTC()

	doc := make(document.Document, len(fields)+2)
	for k, v := range fields {
		doc[k] = v
	}
	doc[document.FieldID] = id
	doc[document.FieldCreatedAt] = createdAt.Format(time.RFC3339Nano)

	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode document for collection '%s': %w", collection, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (path, id, created_at, body) VALUES (?, ?, ?, ?)`,
		s.path(collection), id, createdAt.Format(time.RFC3339Nano), string(body))
	if err != nil {
		return "", fmt.Errorf("failed to insert into collection '%s': %w", collection, err)
	}

	s.changed(collection)
	return id, nil
}

// Update merges the named fields into the stored document body inside a
// transaction, leaving every other field untouched.
func (s *Store) Update(ctx context.Context, collection, id string, fields document.Fields) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateInTx(ctx, tx, s.path(collection), id, fields); err != nil {
		return fmt.Errorf("failed to update collection '%s' id '%s': %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}

	s.changed(collection)
	return nil
}

// Delete removes the document. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE path = ? AND id = ?`, s.path(collection), id)
	if err != nil {
		return fmt.Errorf("failed to delete from collection '%s': %w", collection, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}
	s.changed(collection)
	return nil
}

// UpdatePair applies both partial updates in one transaction: either both
// documents change or neither does.
func (s *Store) UpdatePair(ctx context.Context, collection string, a, b store.FieldUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	path := s.path(collection)
	if err := updateInTx(ctx, tx, path, a.ID, a.Fields); err != nil {
		return fmt.Errorf("failed to update pair on collection '%s': %w", collection, err)
	}
	if err := updateInTx(ctx, tx, path, b.ID, b.Fields); err != nil {
		return fmt.Errorf("failed to update pair on collection '%s': %w", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pair update: %w", err)
	}

	s.changed(collection)
	return nil
}

func updateInTx(ctx context.Context, tx *sql.Tx, path, id string, fields document.Fields) error {
	var body string
	err := tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE path = ? AND id = ?`, path, id).Scan(&body)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	var doc document.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return fmt.Errorf("failed to decode stored document: %w", err)
	}
	for k, v := range fields {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode merged document: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET body = ? WHERE path = ? AND id = ?`, string(merged), path, id)
	return err
}

// query reads the current content of a collection, sorted per the requested
// sort or rowid (insertion order) when none is given.
func (s *Store) query(ctx context.Context, collection string, spec *store.SortSpec) ([]document.Document, error) {
	orderBy := `rowid ASC`
	switch {
	case spec != nil && spec.Field == store.SortByOrder && spec.Direction == store.SortDesc:
		orderBy = `CAST(json_extract(body, '$.order') AS REAL) DESC`
	case spec != nil && spec.Field == store.SortByOrder:
		orderBy = `CAST(json_extract(body, '$.order') AS REAL) ASC`
	case spec != nil && spec.Field == store.SortByCreatedAt && spec.Direction == store.SortDesc:
		orderBy = `created_at DESC`
	case spec != nil && spec.Field == store.SortByCreatedAt:
		orderBy = `created_at ASC`
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM documents WHERE path = ? ORDER BY `+orderBy, s.path(collection))
	if err != nil {
		return nil, fmt.Errorf("failed to query collection '%s': %w", collection, err)
	}
	defer rows.Close()

	var out []document.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var doc document.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Subscribe opens a live query. The initial snapshot is delivered
// immediately; every mutation re-reads the collection and delivers a fresh
// complete snapshot, latest wins.
func (s *Store) Subscribe(ctx context.Context, collection string, spec *store.SortSpec) (store.Subscription, error) {
	sub := &subscription{
		snapshots: make(chan []document.Document, 1),
		errs:      make(chan error, 1),
	}

	initial, err := s.query(ctx, collection, spec)
	if err != nil {
		return nil, err
	}

	refresh := func(cbCtx context.Context, _ string) error {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.closed {
			return nil
		}
		docs, err := s.query(cbCtx, collection, spec)
		if err != nil {
			s.logger.Warn("live query refresh failed",
				zap.String("collection", collection), zap.Error(err))
			sub.pushErr(err)
			return nil
		}
		sub.push(docs)
		return nil
	}

	sub.mu.Lock()
	sub.unsubscribe = s.bus.Subscribe(s.path(collection), refresh)
	sub.push(initial)
	sub.mu.Unlock()
	return sub, nil
}

type subscription struct {
	snapshots   chan []document.Document
	errs        chan error
	mu          sync.Mutex
	closed      bool
	unsubscribe func()
}

var _ store.Subscription = (*subscription)(nil)

func (sub *subscription) Snapshots() <-chan []document.Document { return sub.snapshots }
func (sub *subscription) Errors() <-chan error                  { return sub.errs }

// push delivers latest-wins. Caller holds sub.mu, which also excludes
// Cancel, so push never races a channel close.
func (sub *subscription) push(docs []document.Document) {
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

func (sub *subscription) pushErr(err error) {
	select {
	case sub.errs <- err:
	default:
	}
}

// Cancel unhooks the change listener and closes the channels. Idempotent;
// no delivery follows once it returns, so a pending buffered snapshot is
// discarded rather than left for a post-cancel receive.
func (sub *subscription) Cancel() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	sub.unsubscribe()
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
