// Package mutate is the single write path against the document store. Every
// operation issues its writes, reports exactly one success or error
// notification, and then relies on the subscription manager's next push to
// refresh the UI; the gateway never patches local snapshots.
package mutate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/academiafc/clubsync/core/document"
	"github.com/academiafc/clubsync/core/ordering"
	"github.com/academiafc/clubsync/core/store"
	"github.com/academiafc/clubsync/notify"
)

// User-facing notification messages.
const (
	msgCreated       = "Agregado correctamente"
	msgCreateFailed  = "Error al agregar"
	msgDeleted       = "Eliminado correctamente"
	msgDeleteFailed  = "Error al eliminar"
	msgUpdateFailed  = "Error al actualizar"
	msgHidden        = "Elemento ocultado"
	msgPublished     = "Elemento publicado"
	msgUpdated       = "Actualizado correctamente"
	msgReordered     = "Orden actualizado"
	msgReorderFailed = "Error al reordenar"
	msgEnrolled      = "Alumno inscrito correctamente"
	msgEnrollFailed  = "Error al inscribir alumno"
)

// Fields a registration contributes to the student it becomes.
var enrollFields = []string{"name", "dob", "category", "parent", "phone", "email"}

// Gateway performs create/update/delete/reorder mutations. It holds no
// snapshot state of its own; callers supply whatever the latest snapshot
// knows (e.g. the document count for append-to-end ordering).
type Gateway struct {
	store    store.DocumentStore
	notifier *notify.Notifier
	logger   *zap.Logger
}

// NewGateway creates a Gateway. A nil logger falls back to a no-op logger.
func NewGateway(st store.DocumentStore, notifier *notify.Notifier, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{store: st, notifier: notifier, logger: logger}
}

// report logs a failed operation and emits the matching notification. The
// original store error never reaches the render path; callers get it back
// only as an ordinary return value.
func (g *Gateway) report(op, collection string, err error, success, failure string) error {
	if err != nil {
		g.logger.Warn("mutation failed",
			zap.String("operation", op), zap.String("collection", collection), zap.Error(err))
		g.notifier.Error(failure)
		return fmt.Errorf("%s on collection '%s' failed: %w", op, collection, err)
	}
	g.notifier.Success(success)
	return nil
}

// Create writes a new document with the given fields plus visible: true. The
// store assigns id and createdAt. For order-bearing collections the document
// is appended to the end: order is set to snapshotCount, which the caller
// obtains from its latest snapshot (the gateway does not read before
// writing).
func (g *Gateway) Create(ctx context.Context, collection string, fields document.Fields, snapshotCount int) error {
	payload := make(document.Fields, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload[document.FieldVisible] = true
	if document.IsOrdered(collection) {
		payload[document.FieldOrder] = float64(snapshotCount)
	}

	_, err := g.store.Create(ctx, collection, payload)
	return g.report("create", collection, err, msgCreated, msgCreateFailed)
}

// Delete removes the document. A missing id is not an error at the store
// level, so Delete only fails on transport or permission problems.
func (g *Gateway) Delete(ctx context.Context, collection, id string) error {
	err := g.store.Delete(ctx, collection, id)
	return g.report("delete", collection, err, msgDeleted, msgDeleteFailed)
}

// SetField partially updates exactly one field, leaving every other field
// untouched. Used for status changes and single-field admin edits.
func (g *Gateway) SetField(ctx context.Context, collection, id, field string, value any) error {
	err := g.store.Update(ctx, collection, id, document.Fields{field: value})
	return g.report("setField", collection, err, msgUpdated, msgUpdateFailed)
}

// ToggleVisible flips the document's visibility from its current state. The
// notification names the resulting state.
func (g *Gateway) ToggleVisible(ctx context.Context, collection, id string, current bool) error {
	err := g.store.Update(ctx, collection, id, document.Fields{document.FieldVisible: !current})
	success := msgHidden
	if !current {
		success = msgPublished
	}
	return g.report("toggleVisible", collection, err, success, msgUpdateFailed)
}

// Update partially updates the named fields, atomically from the caller's
// perspective. Used by edit forms.
func (g *Gateway) Update(ctx context.Context, collection, id string, fields document.Fields) error {
	err := g.store.Update(ctx, collection, id, fields)
	return g.report("update", collection, err, msgUpdated, msgUpdateFailed)
}

// SwapOrder moves displayed[index] one position in the given direction by
// writing new order values to exactly two documents in a single atomic pair
// write. Boundary moves are silent no-ops: no write, no notification.
func (g *Gateway) SwapOrder(ctx context.Context, collection string, displayed []document.Document, index int, dir ordering.Direction) error {
	swap, ok := ordering.ComputeSwap(displayed, index, dir)
	if !ok {
		return nil
	}

	err := g.store.UpdatePair(ctx, collection,
		store.FieldUpdate{ID: swap.ID, Fields: document.Fields{document.FieldOrder: swap.Order}},
		store.FieldUpdate{ID: swap.NeighborID, Fields: document.Fields{document.FieldOrder: swap.NeighborOrder}},
	)
	return g.report("swapOrder", collection, err, msgReordered, msgReorderFailed)
}

// EnrollFromRegistration converts an accepted registration into a student:
// a create into students paired with a delete from registrations, never a
// move. The student is created first so a failure cannot lose the
// registration; a failed delete leaves a registration the administrator can
// remove by hand.
func (g *Gateway) EnrollFromRegistration(ctx context.Context, registration document.Document) error {
	id := document.IDOf(registration)
	if id == "" {
		err := fmt.Errorf("registration has no id")
		return g.report("enroll", document.CollectionRegistrations, err, msgEnrolled, msgEnrollFailed)
	}

	student := make(document.Fields, len(enrollFields)+1)
	for _, field := range enrollFields {
		if v, ok := registration[field]; ok {
			student[field] = v
		}
	}
	student[document.FieldVisible] = true

	if _, err := g.store.Create(ctx, document.CollectionStudents, student); err != nil {
		return g.report("enroll", document.CollectionStudents, err, msgEnrolled, msgEnrollFailed)
	}
	err := g.store.Delete(ctx, document.CollectionRegistrations, id)
	return g.report("enroll", document.CollectionRegistrations, err, msgEnrolled, msgEnrollFailed)
}
