package orders

import (
	"testing"

	"github.com/farm2market/farm2market-backend/pkg/enums"
)

func TestCanTransitionTable(t *testing.T) {
	allowed := []struct {
		from, to enums.OrderStatus
	}{
		{enums.OrderStatusPending, enums.OrderStatusConfirmed},
		{enums.OrderStatusPending, enums.OrderStatusCancelled},
		{enums.OrderStatusConfirmed, enums.OrderStatusPreparing},
		{enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
		{enums.OrderStatusPreparing, enums.OrderStatusReady},
		{enums.OrderStatusPreparing, enums.OrderStatusCancelled},
		{enums.OrderStatusReady, enums.OrderStatusInTransit},
		{enums.OrderStatusReady, enums.OrderStatusDelivered},
		{enums.OrderStatusReady, enums.OrderStatusCancelled},
		{enums.OrderStatusInTransit, enums.OrderStatusDelivered},
		{enums.OrderStatusInTransit, enums.OrderStatusCancelled},
		{enums.OrderStatusDelivered, enums.OrderStatusRefunded},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to enums.OrderStatus
	}{
		{enums.OrderStatusPending, enums.OrderStatusDelivered},
		{enums.OrderStatusPending, enums.OrderStatusPreparing},
		{enums.OrderStatusDelivered, enums.OrderStatusPending},
		{enums.OrderStatusDelivered, enums.OrderStatusCancelled},
		{enums.OrderStatusCancelled, enums.OrderStatusConfirmed},
		{enums.OrderStatusCancelled, enums.OrderStatusPending},
		{enums.OrderStatusRefunded, enums.OrderStatusDelivered},
		{enums.OrderStatusConfirmed, enums.OrderStatusDelivered},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	for _, status := range []enums.OrderStatus{enums.OrderStatusCancelled, enums.OrderStatusRefunded} {
		if got := AllowedTransitions(status); len(got) != 0 {
			t.Errorf("expected %s to be terminal, allows %v", status, got)
		}
		if !status.IsTerminal() {
			t.Errorf("expected %s to report terminal", status)
		}
	}
}
