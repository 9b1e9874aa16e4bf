package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/academiafc/clubsync/core/document"
)

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsPtr(s string) *time.Time {
	t := ts(s)
	return &t
}

func TestApply_TextContains(t *testing.T) {
	snapshot := []document.Document{
		{"id": "1", "name": "Ana Contreras"},
		{"id": "2", "name": "Benjamín Soto"},
		{"id": "3", "name": "MARIANA Rojas"},
		{"id": "4"},
	}

	tests := []struct {
		name     string
		criteria Criteria
		wantIDs  []string
	}{
		{
			name:     "case-insensitive substring",
			criteria: Criteria{Text: TextMatch{Field: "name", Value: "ana"}},
			wantIDs:  []string{"1", "3"},
		},
		{
			name:     "empty criterion matches everything",
			criteria: Criteria{},
			wantIDs:  []string{"1", "2", "3", "4"},
		},
		{
			name:     "missing field never matches a non-empty needle",
			criteria: Criteria{Text: TextMatch{Field: "name", Value: "zzz"}},
			wantIDs:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(snapshot, tt.criteria)
			ids := make([]string, 0, len(got))
			for _, d := range got {
				ids = append(ids, document.IDOf(d))
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestApply_ExactMatch(t *testing.T) {
	snapshot := []document.Document{
		{"id": "1", "status": "Activo"},
		{"id": "2", "status": "Inactivo"},
		{"id": "3"},
	}

	got := Apply(snapshot, Criteria{Exact: ExactMatch{Field: "status", Value: "Activo"}})
	assert.Len(t, got, 1)
	assert.Equal(t, "1", document.IDOf(got[0]))
}

func TestApply_DateRange(t *testing.T) {
	// Payments at Dec 15, Jan 10, Jan 30, Feb 2; range Jan 1 - Jan 31
	// returns exactly the two January payments.
	snapshot := []document.Document{
		{"id": "dec", "paymentDate": ts("2025-12-15")},
		{"id": "jan10", "paymentDate": ts("2026-01-10")},
		{"id": "jan30", "paymentDate": ts("2026-01-30")},
		{"id": "feb", "paymentDate": ts("2026-02-02")},
	}

	criteria := Criteria{Range: DateRange{
		Field: "paymentDate",
		Start: tsPtr("2026-01-01"),
		End:   tsPtr("2026-01-31"),
	}}

	got := Apply(snapshot, criteria)
	assert.Len(t, got, 2)
	assert.Equal(t, "jan10", document.IDOf(got[0]))
	assert.Equal(t, "jan30", document.IDOf(got[1]))
}

func TestApply_DateRangeBounds(t *testing.T) {
	snapshot := []document.Document{
		{"id": "on-start", "paymentDate": ts("2026-01-01")},
		{"id": "on-end", "paymentDate": ts("2026-01-31")},
		{"id": "missing"},
	}

	tests := []struct {
		name    string
		r       DateRange
		wantIDs []string
	}{
		{
			name:    "bounds are inclusive",
			r:       DateRange{Field: "paymentDate", Start: tsPtr("2026-01-01"), End: tsPtr("2026-01-31")},
			wantIDs: []string{"on-start", "on-end"},
		},
		{
			name:    "open start",
			r:       DateRange{Field: "paymentDate", End: tsPtr("2026-01-15")},
			wantIDs: []string{"on-start"},
		},
		{
			name:    "open end",
			r:       DateRange{Field: "paymentDate", Start: tsPtr("2026-01-15")},
			wantIDs: []string{"on-end"},
		},
		{
			name:    "no bounds keeps documents without the field",
			r:       DateRange{Field: "paymentDate"},
			wantIDs: []string{"on-start", "on-end", "missing"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(snapshot, Criteria{Range: tt.r})
			ids := make([]string, 0, len(got))
			for _, d := range got {
				ids = append(ids, document.IDOf(d))
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestApply_CriteriaCombineWithAnd(t *testing.T) {
	snapshot := []document.Document{
		{"id": "1", "name": "Ana", "status": "Activo"},
		{"id": "2", "name": "Ana", "status": "Inactivo"},
		{"id": "3", "name": "Berta", "status": "Activo"},
	}

	both := Criteria{
		Text:  TextMatch{Field: "name", Value: "Ana"},
		Exact: ExactMatch{Field: "status", Value: "Activo"},
	}
	combined := Apply(snapshot, both)
	assert.Len(t, combined, 1)
	assert.Equal(t, "1", document.IDOf(combined[0]))

	// AND semantics: the combined result is the intersection of applying
	// each criterion alone.
	textOnly := Apply(snapshot, Criteria{Text: both.Text})
	exactOnly := Apply(snapshot, Criteria{Exact: both.Exact})
	inBoth := make([]document.Document, 0)
	seen := map[string]struct{}{}
	for _, d := range exactOnly {
		seen[document.IDOf(d)] = struct{}{}
	}
	for _, d := range textOnly {
		if _, ok := seen[document.IDOf(d)]; ok {
			inBoth = append(inBoth, d)
		}
	}
	assert.Equal(t, inBoth, combined)
}

func TestApply_DoesNotMutateSnapshot(t *testing.T) {
	snapshot := []document.Document{
		{"id": "1", "name": "Ana", "visible": false},
		{"id": "2", "name": "Berta"},
	}

	criteria := Criteria{Text: TextMatch{Field: "name", Value: "berta"}}
	first := Apply(snapshot, criteria)
	second := Apply(snapshot, criteria)

	assert.Equal(t, first, second)
	assert.Equal(t, "Ana", snapshot[0]["name"])
	assert.Equal(t, false, snapshot[0]["visible"])
	assert.Len(t, snapshot, 2)
}

func TestPublic_VisibilityDefaultsAndCap(t *testing.T) {
	snapshot := []document.Document{
		{"id": "1"},                  // missing visible -> visible
		{"id": "2", "visible": true},
		{"id": "3", "visible": false}, // explicitly hidden
		{"id": "4"},
		{"id": "5"},
	}

	all := Public(snapshot, 0)
	assert.Len(t, all, 4)
	for _, d := range all {
		assert.NotEqual(t, "3", document.IDOf(d))
	}

	capped := Public(snapshot, 3)
	assert.Len(t, capped, 3)
	assert.Equal(t, "1", document.IDOf(capped[0]))
	assert.Equal(t, "2", document.IDOf(capped[1]))
	assert.Equal(t, "4", document.IDOf(capped[2]))
}

func TestPublic_HiddenNewestIsExcluded(t *testing.T) {
	// The most recent item, once hidden, never shows in a "latest 3" view.
	snapshot := []document.Document{
		{"id": "newest", "visible": false},
		{"id": "a"},
		{"id": "b"},
		{"id": "c"},
	}

	got := Public(snapshot, 3)
	assert.Len(t, got, 3)
	for _, d := range got {
		assert.NotEqual(t, "newest", document.IDOf(d))
	}
}
