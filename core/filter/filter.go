// Package filter derives display lists from collection snapshots. Criteria
// are pure predicates over documents; applying them never mutates the
// snapshot or its elements, so views can re-evaluate freely against the
// manager's latest copy.
package filter

import (
	"strings"
	"time"

	"github.com/academiafc/clubsync/core/document"
)

// TextMatch is a case-insensitive substring criterion against one field.
// An empty Value matches everything.
type TextMatch struct {
	Field string
	Value string
}

// ExactMatch is an equality criterion against one field (status, category).
// A nil Value matches everything.
type ExactMatch struct {
	Field string
	Value any
}

// DateRange is an inclusive [Start, End] containment criterion against a
// timestamp field; either bound may be open. While any bound is set,
// documents lacking the field are excluded. Field defaults to createdAt.
type DateRange struct {
	Field string
	Start *time.Time
	End   *time.Time
}

// Criteria is one view's complete filter state. All active criteria are
// combined with logical AND; an empty Criteria matches every document.
type Criteria struct {
	Text  TextMatch
	Exact ExactMatch
	Range DateRange
}

func (r DateRange) active() bool {
	return r.Start != nil || r.End != nil
}

// Matches evaluates all active criteria against a single document.
func (c Criteria) Matches(doc document.Document) bool {
	if c.Text.Value != "" {
		s, _ := doc[c.Text.Field].(string)
		if !strings.Contains(strings.ToLower(s), strings.ToLower(c.Text.Value)) {
			return false
		}
	}

	if c.Exact.Value != nil {
		if doc[c.Exact.Field] != c.Exact.Value {
			return false
		}
	}

	if c.Range.active() {
		field := c.Range.Field
		if field == "" {
			field = document.FieldCreatedAt
		}
		if _, ok := doc[field]; !ok {
			return false
		}
		ts := document.TimeOf(doc, field)
		if ts.IsZero() {
			return false
		}
		if c.Range.Start != nil && ts.Before(*c.Range.Start) {
			return false
		}
		if c.Range.End != nil && ts.After(*c.Range.End) {
			return false
		}
	}

	return true
}

// Apply returns the subsequence of snapshot matching all active criteria,
// preserving the snapshot's order. The snapshot is never modified.
func Apply(snapshot []document.Document, c Criteria) []document.Document {
	out := make([]document.Document, 0, len(snapshot))
	for _, doc := range snapshot {
		if c.Matches(doc) {
			out = append(out, doc)
		}
	}
	return out
}

// Public derives a public-facing view: documents explicitly hidden
// (visible == false) are dropped, everything else is kept, and the result is
// capped to the first limit items. A limit <= 0 means no cap. The input is
// expected to already be in display order.
func Public(snapshot []document.Document, limit int) []document.Document {
	out := make([]document.Document, 0, len(snapshot))
	for _, doc := range snapshot {
		if !document.VisibleOf(doc) {
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
