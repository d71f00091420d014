package appointment

import (
	"context"

	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
)

// PublishTo returns a listener that forwards every appointment event to the
// message broker. Publish failures only cost downstream consumers an event,
// so they are logged and dropped.
func PublishTo(broker messaging.Broker, lg *logger.Logger) Listener {
	return func(ev Event) {
		if err := broker.Publish(context.Background(), messaging.ChannelAppointmentEvents, ev); err != nil {
			lg.Error(err, "failed to publish appointment event",
				"appointment_id", ev.AppointmentID, "type", string(ev.Type))
		}
	}
}
