package httpapi

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/academiafc/clubsync/core/document"
	"github.com/academiafc/clubsync/core/filter"
)

// parseCriteria builds a view's filter criteria from query parameters:
//
//	q / qField   - case-insensitive substring match (qField defaults to "name")
//	eq / eqField - exact match (eqField defaults to "status")
//	from / to    - inclusive date range bounds (RFC 3339 or YYYY-MM-DD)
//	dateField    - field the range applies to (defaults to createdAt)
func parseCriteria(c *gin.Context) (filter.Criteria, error) {
	var criteria filter.Criteria

	if q := c.Query("q"); q != "" {
		criteria.Text = filter.TextMatch{
			Field: c.DefaultQuery("qField", "name"),
			Value: q,
		}
	}

	if eq := c.Query("eq"); eq != "" {
		criteria.Exact = filter.ExactMatch{
			Field: c.DefaultQuery("eqField", document.FieldStatus),
			Value: eq,
		}
	}

	criteria.Range.Field = c.DefaultQuery("dateField", document.FieldCreatedAt)
	if from := c.Query("from"); from != "" {
		t, err := parseBound(from, false)
		if err != nil {
			return filter.Criteria{}, err
		}
		criteria.Range.Start = &t
	}
	if to := c.Query("to"); to != "" {
		t, err := parseBound(to, true)
		if err != nil {
			return filter.Criteria{}, err
		}
		criteria.Range.End = &t
	}

	return criteria, nil
}

// parseBound accepts RFC 3339 timestamps or bare dates. A bare date used as
// an end bound covers the whole day, keeping the range inclusive.
func parseBound(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date bound '%s'", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
