package domain

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidInput marks user input rejected at the boundary.
var ErrInvalidInput = errors.New("invalid input")

// ParseThreshold parses a percent threshold in (0, 100].
func ParseThreshold(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%")))
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(ErrInvalidInput, "threshold %q is not a number", s)
	}
	if d.LessThanOrEqual(decimal.Zero) || d.GreaterThan(hundred) {
		return decimal.Decimal{}, errors.Wrapf(ErrInvalidInput, "threshold %s must be in (0, 100]", d)
	}
	return d, nil
}

// ParsePrice parses a strictly positive price.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(ErrInvalidInput, "price %q is not a number", s)
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, errors.Wrapf(ErrInvalidInput, "price %s must be positive", d)
	}
	return d, nil
}

// ParseQuantity parses a strictly positive whole quantity.
func ParseQuantity(s string) (int64, error) {
	q, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidInput, "quantity %q is not an integer", s)
	}
	if q <= 0 {
		return 0, errors.Wrapf(ErrInvalidInput, "quantity %d must be positive", q)
	}
	return q, nil
}

// ParseDirection accepts rises_to/up and falls_to/down.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rises_to", "up", "above":
		return DirectionRisesTo, nil
	case "falls_to", "down", "below":
		return DirectionFallsTo, nil
	default:
		return "", errors.Wrapf(ErrInvalidInput, "direction %q must be up or down", s)
	}
}

// ParseItemName validates an item display name.
func ParseItemName(s string) (string, error) {
	name := strings.TrimSpace(s)
	if name == "" {
		return "", errors.Wrap(ErrInvalidInput, "item name is empty")
	}
	return name, nil
}
