// Package status delivers session lifecycle events to observers.
package status

import (
	"trafficpilot/internal/models"
)

// Publisher accepts lifecycle events. Publish must not block on slow
// observers and must be safe for concurrent use.
type Publisher interface {
	Publish(event models.BotStatusEvent)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(event models.BotStatusEvent)

func (f PublisherFunc) Publish(event models.BotStatusEvent) { f(event) }

// Fanout forwards each event to every publisher in order
type Fanout []Publisher

func (f Fanout) Publish(event models.BotStatusEvent) {
	for _, p := range f {
		if p != nil {
			p.Publish(event)
		}
	}
}

// Discard drops every event
var Discard Publisher = PublisherFunc(func(models.BotStatusEvent) {})
