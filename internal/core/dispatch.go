package core

import (
	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/metrics"
	"github.com/concord-im/concord/internal/proto"
)

// Dispatcher fans server-generated events out to registered sessions. It holds
// no state of its own; delivery is best-effort enqueueing onto each recipient
// session's outbound queue, which never blocks on a slow or dead peer.
type Dispatcher struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: logger}
}

// ToUser delivers the event to every session of one user. A user with no
// sessions is a silent no-op.
func (d *Dispatcher) ToUser(userID string, ev proto.Event) {
	frame, ok := d.encode(ev)
	if !ok {
		return
	}
	d.count(ev, d.registry.enqueueUser(userID, frame))
}

// ToUsers delivers the event to every session of each listed user. All
// recipients share one serialized frame.
func (d *Dispatcher) ToUsers(userIDs []string, ev proto.Event) {
	if len(userIDs) == 0 {
		return
	}
	frame, ok := d.encode(ev)
	if !ok {
		return
	}
	d.count(ev, d.registry.enqueueUsers(userIDs, frame))
}

// Global delivers the event to every registered session.
func (d *Dispatcher) Global(ev proto.Event) {
	frame, ok := d.encode(ev)
	if !ok {
		return
	}
	d.count(ev, d.registry.enqueueAll(frame))
}

func (d *Dispatcher) encode(ev proto.Event) ([]byte, bool) {
	frame, err := ev.Encode()
	if err != nil {
		d.log.Error().Err(err).Str("event", ev.Name()).Msg("encode outbound event")
		return nil, false
	}
	return frame, true
}

func (d *Dispatcher) count(ev proto.Event, delivered int) {
	if delivered > 0 {
		metrics.EventsDispatched.WithLabelValues(ev.Name()).Add(float64(delivered))
	}
}
