package ussd

import (
	"context"
	"log/slog"

	"github.com/SmartInclusion/SmartInclusion/internal/models"
)

// Format renders an outcome as a USSD response line: the CON or END marker,
// a space, then the text.
func Format(o Outcome) string {
	return o.Kind.String() + " " + o.Text
}

// Dispatcher turns one session input into the raw response line.
type Dispatcher struct {
	machine *Machine
}

// NewDispatcher creates a Dispatcher around the given machine.
func NewDispatcher(machine *Machine) *Dispatcher {
	return &Dispatcher{machine: machine}
}

// Evaluate decodes the input text and runs the machine. Session and service
// codes are logged but do not influence the result.
func (d *Dispatcher) Evaluate(ctx context.Context, in models.SessionInput) Outcome {
	steps := Decode(in.Text)
	slog.Debug("Dispatcher.Evaluate: decoded session path",
		"session_id", in.SessionID, "service_code", in.ServiceCode, "phone", in.PhoneNumber, "steps", len(steps))
	return d.machine.Transition(ctx, steps, in.PhoneNumber)
}

// Handle evaluates the input and returns the formatted response body.
func (d *Dispatcher) Handle(ctx context.Context, in models.SessionInput) string {
	return Format(d.Evaluate(ctx, in))
}
