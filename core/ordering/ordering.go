// Package ordering computes the order-value pair for a single up/down reorder
// of an item within an already-displayed list. It is a pure calculation: the
// mutation gateway is responsible for persisting the result.
package ordering

import "github.com/academiafc/clubsync/core/document"

// Direction indicates where the administrator wants to move an item.
type Direction string

const (
	// Earlier moves the item toward index 0.
	Earlier Direction = "earlier"
	// Later moves the item toward the end of the list.
	Later Direction = "later"
)

// Swap names the two documents to write and the order values each receives.
// Exactly these two documents change; a swap is a transposition, never a
// renumbering pass.
type Swap struct {
	ID            string
	Order         float64
	NeighborID    string
	NeighborOrder float64
}

// ComputeSwap derives the writes that move displayed[index] one position in
// the given direction. The list must already be in display order. It returns
// ok=false for boundary moves (first item earlier, last item later) and for
// out-of-range indices; these are normal UI states, not errors.
//
// Stored order values may be missing, equal, or non-contiguous: a missing
// value falls back to the item's positional index, and when the two resolved
// values are equal (legacy documents seeded with identical defaults) both are
// overridden to their positional indices so the swap never degenerates into
// a no-op write.
func ComputeSwap(displayed []document.Document, index int, dir Direction) (Swap, bool) {
	if index < 0 || index >= len(displayed) {
		return Swap{}, false
	}

	neighborIndex := index + 1
	if dir == Earlier {
		neighborIndex = index - 1
	}
	if neighborIndex < 0 || neighborIndex >= len(displayed) {
		return Swap{}, false
	}

	item := displayed[index]
	neighbor := displayed[neighborIndex]

	orderA := document.OrderOf(item, index)
	orderB := document.OrderOf(neighbor, neighborIndex)
	if orderA == orderB {
		orderA = float64(index)
		orderB = float64(neighborIndex)
	}

	return Swap{
		ID:            document.IDOf(item),
		Order:         orderB,
		NeighborID:    document.IDOf(neighbor),
		NeighborOrder: orderA,
	}, true
}
