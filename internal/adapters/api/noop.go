package api

import (
	"context"
	"log/slog"
)

// NoopTransmitter is a no-op transmitter for development and testing.
// It logs transmissions but sends nothing over the network.
type NoopTransmitter struct{}

// NewNoopTransmitter creates a new NoopTransmitter.
func NewNoopTransmitter() *NoopTransmitter {
	return &NoopTransmitter{}
}

// TransmitSet logs the set but does not deliver it.
func (t *NoopTransmitter) TransmitSet(_ context.Context, exerciseID string, setNumber int, payload SetPayload) error {
	slog.Info("noop_set_transmit",
		"exercise_id", exerciseID,
		"set_number", setNumber,
		"weight", payload.Weight,
		"reps", payload.Reps,
		"completed", payload.Completed,
	)
	return nil
}
