package payment

import (
	"fmt"

	"templeseva/internal/domain"
)

// subscribedEvents is the fixed set of gateway event types this system
// subscribes to. Anything outside it is dropped with an ignored outcome.
var subscribedEvents = []string{
	"payment.captured",
	"payment.failed",
	"order.paid",
}

// eventTargets maps vendor event types to local target states. The map is
// validated at startup so a misconfigured entry fails the process instead of
// being silently ignored at delivery time.
var eventTargets = map[string]domain.PaymentStatus{
	"payment.captured": domain.PaymentStatusCaptured,
	"payment.failed":   domain.PaymentStatusFailed,
	"order.paid":       domain.PaymentStatusCaptured,
}

// ValidateEventTargets checks every subscribed event type maps to a terminal
// state reachable from pending.
func ValidateEventTargets() error {
	if len(subscribedEvents) == 0 {
		return fmt.Errorf("no gateway event types subscribed")
	}
	for _, evType := range subscribedEvents {
		target, ok := eventTargets[evType]
		if !ok {
			return fmt.Errorf("gateway event type %q has no local target state", evType)
		}
		if !target.Terminal() || !domain.PaymentStatusPending.CanTransitionTo(target) {
			return fmt.Errorf("gateway event type %q maps to unreachable target %q", evType, target)
		}
	}
	for evType := range eventTargets {
		found := false
		for _, sub := range subscribedEvents {
			if sub == evType {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("event target %q is mapped but not subscribed", evType)
		}
	}
	return nil
}
