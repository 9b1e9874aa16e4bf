// Package document defines the loosely-typed document model shared by every
// layer of the application: a Document is a mapping from field name to value,
// plus a handful of convention fields (id, createdAt, visible, order) whose
// absence has a documented default. All default resolution lives here so call
// sites never reimplement "missing means X" logic.
package document

import (
	"strconv"
	"time"
)

// Document is a single record in a collection. Values are whatever the store
// delivered; numeric fields decoded from JSON arrive as float64.
type Document map[string]any

// Fields is a partial document used as mutation input. It carries only the
// fields being written, never the full record.
type Fields map[string]any

// Convention field names shared by all collections.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldVisible   = "visible"
	FieldOrder     = "order"
	FieldStatus    = "status"
)

// The application's collections. The six primary collections are subscribed
// together once the auth gate resolves; registrations and site config have
// their own lifecycles.
const (
	CollectionNews          = "news"
	CollectionAchievements  = "achievements"
	CollectionSchedules     = "schedules"
	CollectionStudents      = "students"
	CollectionCategories    = "categories"
	CollectionPayments      = "payments"
	CollectionRegistrations = "registrations"
	CollectionSiteConfig    = "siteConfig"
)

// PrimaryCollections lists the collections opened together by the sync
// manager after sign-in, in the order they are opened.
var PrimaryCollections = []string{
	CollectionNews,
	CollectionAchievements,
	CollectionSchedules,
	CollectionStudents,
	CollectionCategories,
	CollectionPayments,
}

// Registration status values used by the admin requests view.
const (
	StatusPending   = "pendiente"
	StatusContacted = "contactado"
	StatusEnrolled  = "inscrito"
)

var orderedCollections = map[string]struct{}{
	CollectionNews:         {},
	CollectionAchievements: {},
	CollectionSchedules:    {},
}

// IsOrdered reports whether the named collection carries a manual `order`
// field and is therefore subject to reordering.
func IsOrdered(collection string) bool {
	_, ok := orderedCollections[collection]
	return ok
}

// IDOf returns the document's store-assigned identifier, or "" when absent.
func IDOf(doc Document) string {
	if id, ok := doc[FieldID].(string); ok {
		return id
	}
	return ""
}

// VisibleOf resolves the document's visibility. A missing or non-boolean
// `visible` field means visible: only an explicit false hides a document.
func VisibleOf(doc Document) bool {
	if v, ok := doc[FieldVisible].(bool); ok {
		return v
	}
	return true
}

// OrderOf resolves the document's manual sort key, falling back to the given
// positional index when the field is absent or non-numeric.
func OrderOf(doc Document, fallbackIndex int) float64 {
	if v, ok := doc[FieldOrder]; ok {
		if f, numeric := ToFloat64(v); numeric {
			return f
		}
	}
	return float64(fallbackIndex)
}

// CreatedAtOf resolves the document's creation timestamp. A missing or
// unreadable value yields the zero time, which sorts as the oldest possible
// entry in createdAt-descending views.
func CreatedAtOf(doc Document) time.Time {
	return TimeOf(doc, FieldCreatedAt)
}

// TimeOf reads the named field as a timestamp. It accepts time.Time values,
// RFC 3339 strings, and numeric unix-second values, covering the encodings
// the stores deliver.
func TimeOf(doc Document, field string) time.Time {
	switch v := doc[field].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	case float64:
		sec := int64(v)
		nsec := int64((v - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC()
	case int64:
		return time.Unix(v, 0).UTC()
	case int:
		return time.Unix(int64(v), 0).UTC()
	}
	return time.Time{}
}

// ToFloat64 converts a value of various numeric types to a float64. It
// returns the converted value and whether the conversion succeeded.
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the document. Snapshot readers receive
// clones so the manager's copy is never mutated in place.
func Clone(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// CloneAll shallow-copies a document sequence.
func CloneAll(docs []Document) []Document {
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = Clone(d)
	}
	return out
}
