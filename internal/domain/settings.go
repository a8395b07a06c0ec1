package domain

import "github.com/shopspring/decimal"

// DefaultThresholdPercent is the per-owner threshold used until the owner picks one.
var DefaultThresholdPercent = decimal.NewFromInt(5)

// NotificationSettings are per-owner notification preferences.
// LastSeen holds the prices observed by the previous item sweep, keyed by item key.
type NotificationSettings struct {
	Owner            int64                      `json:"owner"`
	ThresholdPercent decimal.Decimal            `json:"threshold_percent"`
	CheckItems       bool                       `json:"check_items"`
	CheckPortfolio   bool                       `json:"check_portfolio"`
	LastSeen         map[string]decimal.Decimal `json:"last_seen"`
}

// DefaultSettings returns the settings an owner starts with.
func DefaultSettings(owner int64) NotificationSettings {
	return NotificationSettings{
		Owner:            owner,
		ThresholdPercent: DefaultThresholdPercent,
		CheckItems:       true,
		CheckPortfolio:   true,
		LastSeen:         map[string]decimal.Decimal{},
	}
}
