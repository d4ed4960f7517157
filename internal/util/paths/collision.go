// Package paths maps catalog items to their place in the output tree.
package paths

import (
	"fmt"
	"strings"
)

// NamedItem is a product with its normalized file name.
type NamedItem struct {
	ID   string // Product identifier from the storefront
	Name string // Normalized name, without extension
}

// ResolveCollisions makes Names unique. Items whose names match
// case-insensitively (so the result is safe on Windows and macOS) all get
// their ID appended:
//
//	"Go Programming" (42), "Go programming" (7) ->
//	"Go Programming_42", "Go programming_7"
//
// Every member of a collision group is renamed, not just the later ones, so
// the result depends only on the set of items and not on catalog order.
//
// Returns the slice (modified in place) and the number of renamed items.
func ResolveCollisions(items []NamedItem) ([]NamedItem, int) {
	if len(items) == 0 {
		return items, 0
	}

	groups := make(map[string][]int)
	for i, it := range items {
		key := strings.ToLower(it.Name)
		groups[key] = append(groups[key], i)
	}

	renamed := 0
	for _, indices := range groups {
		if len(indices) <= 1 {
			continue
		}
		renamed += len(indices)
		for _, idx := range indices {
			it := &items[idx]
			it.Name = fmt.Sprintf("%s_%s", it.Name, it.ID)
		}
	}

	return items, renamed
}
