// Package domain holds the item pricing and alerting model.
package domain

import "strings"

// PortfolioTotalSubject is the snapshot subject for the aggregate portfolio value.
const PortfolioTotalSubject = "portfolio-total"

// ItemKey normalizes an item display name for lookups. Matching is exact apart from case.
func ItemKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameItem reports whether a and b name the same item.
func SameItem(a, b string) bool {
	return ItemKey(a) == ItemKey(b)
}
