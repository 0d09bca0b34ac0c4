package engine

import (
	"sort"

	"github.com/hyperengineering/formpath/internal/types"
)

// PageOrder is the form-wide total order of pages: the first page always
// sorts first, then ascending Order, then ID.
type PageOrder []string

// NewPageOrder sorts pages into their total order.
func NewPageOrder(pages []types.Page) PageOrder {
	sorted := append([]types.Page(nil), pages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.IsFirst != b.IsFirst {
			return a.IsFirst
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})

	order := make(PageOrder, len(sorted))
	for i, p := range sorted {
		order[i] = p.ID
	}
	return order
}

// Index returns the position of pageID, or -1 if it is not in the order.
func (o PageOrder) Index(pageID string) int {
	for i, id := range o {
		if id == pageID {
			return i
		}
	}
	return -1
}

// First returns the first page, or "" for an empty order.
func (o PageOrder) First() string {
	if len(o) == 0 {
		return ""
	}
	return o[0]
}

// Successor returns the page immediately after pageID.
// ok is false when pageID is last or unknown.
func (o PageOrder) Successor(pageID string) (string, bool) {
	i := o.Index(pageID)
	if i < 0 || i+1 >= len(o) {
		return "", false
	}
	return o[i+1], true
}

// Progress returns the completion percentage for pageID, rounded to two
// decimals. Unknown pages and empty orders report 0.
func (o PageOrder) Progress(pageID string) float64 {
	i := o.Index(pageID)
	if i < 0 || len(o) == 0 {
		return 0
	}
	return round2(float64(i+1) / float64(len(o)) * 100)
}
