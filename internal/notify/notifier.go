// Package notify dispatches appointment events to the notification
// collaborator. Delivery is outside this service; the default implementation
// records the event and returns immediately.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/careloop/scheduling/internal/appointment"
)

// LogNotifier implements appointment.Notifier by emitting structured events.
// It stands in for the real dispatch transport in dev and in tests.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) AppointmentCreated(ctx context.Context, a *appointment.Appointment) {
	evt := n.logger.Info().
		Str("event", "appointment_created").
		Str("appointment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("priority", string(a.Priority))
	if a.ProviderID != nil {
		evt = evt.Str("provider_id", a.ProviderID.String())
	}
	evt.Msg("notification dispatched")
}

func (n *LogNotifier) AppointmentClaimed(ctx context.Context, a *appointment.Appointment) {
	n.logger.Info().
		Str("event", "appointment_claimed").
		Str("appointment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("provider_id", a.ProviderID.String()).
		Msg("notification dispatched")
}

func (n *LogNotifier) AppointmentStatusChanged(ctx context.Context, a *appointment.Appointment, previous appointment.Status) {
	n.logger.Info().
		Str("event", "appointment_status_changed").
		Str("appointment_id", a.ID.String()).
		Str("patient_id", a.PatientID.String()).
		Str("from", string(previous)).
		Str("to", string(a.Status)).
		Msg("notification dispatched")
}
