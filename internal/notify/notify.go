// Package notify delivers rendered sweep results to owners.
package notify

import (
	"context"
)

// Notifier delivers a message, optionally with an image, to one owner.
type Notifier interface {
	Send(ctx context.Context, owner int64, text string, image []byte) error
}
