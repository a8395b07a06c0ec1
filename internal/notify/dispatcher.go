package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/skinwatch/internal/domain"
	"go.uber.org/zap"
)

type deliveryRecorder interface {
	Notification(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) Notification(bool) {}

// Dispatcher renders batches, delivers them and publishes them to the broadcaster.
// Delivery failures are logged and dropped.
type Dispatcher struct {
	notifier    Notifier
	broadcaster *Broadcaster
	rec         deliveryRecorder
	l           *zap.Logger
}

// NewDispatcher creates a Dispatcher. broadcaster and rec may be nil.
func NewDispatcher(n Notifier, broadcaster *Broadcaster, rec deliveryRecorder, l *zap.Logger) *Dispatcher {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Dispatcher{notifier: n, broadcaster: broadcaster, rec: rec, l: l}
}

// Dispatch delivers batch to its owner.
func (d *Dispatcher) Dispatch(ctx context.Context, batch domain.Batch) {
	if batch.Empty() {
		return
	}

	err := d.notifier.Send(ctx, batch.Owner, Render(batch), batch.Image)
	d.rec.Notification(err == nil)
	if err != nil {
		d.l.Warn("notification dropped",
			zap.Int64("owner", batch.Owner),
			zap.Int("events", len(batch.Events)),
			zap.Error(err))
	}

	if d.broadcaster != nil {
		d.broadcaster.Publish(batch)
	}
}

// Render formats batch as Telegram HTML, one paragraph per event.
func Render(batch domain.Batch) string {
	parts := make([]string, 0, len(batch.Events)+1)
	for _, ev := range batch.Events {
		parts = append(parts, renderEvent(ev))
	}
	if batch.Omitted > 0 {
		parts = append(parts, fmt.Sprintf("… and %d more", batch.Omitted))
	}
	return strings.Join(parts, "\n\n")
}

func renderEvent(ev domain.Event) string {
	item := html.EscapeString(ev.Item)
	switch ev.Kind {
	case domain.KindTargetReached:
		verb := "rose to"
		if ev.Direction == domain.DirectionFallsTo {
			verb = "fell to"
		}
		return fmt.Sprintf("<b>%s</b> %s %s (target %s)", item, verb, money(ev.Current), money(ev.Target))
	case domain.KindWatchlistMove:
		return fmt.Sprintf("<b>%s</b> %s\n%s → %s", item, percent(ev.Change), money(ev.Previous), money(ev.Current))
	case domain.KindItemMove:
		return fmt.Sprintf("<b>%s</b> x%d %s\n%s → %s", item, ev.Quantity, percent(ev.Change), money(ev.Previous), money(ev.Current))
	case domain.KindPortfolioMove:
		return fmt.Sprintf("<b>Portfolio</b> %s\n%s → %s", percent(ev.Change), money(ev.Previous), money(ev.Current))
	default:
		return fmt.Sprintf("%s %s %s", ev.Kind, item, money(ev.Current))
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func percent(d decimal.Decimal) string {
	sign := ""
	if d.IsPositive() {
		sign = "+"
	}
	return sign + d.StringFixed(2) + "%"
}
