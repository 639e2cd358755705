package orders

import "log/slog"

// BuildOrderService wires an OrderService from the remote ports. A nil port
// falls back to the deterministic in-process stand-in.
func BuildOrderService(inventory InventoryPort, payments PaymentsPort, log *slog.Logger) *OrderService {
	if log == nil {
		log = slog.Default()
	}

	if inventory == nil {
		log.Info("inventory adapter disabled, using in-process stub")
		inventory = InventoryStub{}
	}
	if payments == nil {
		log.Info("payments adapter disabled, using in-process stub")
		payments = PaymentsStub{}
	}

	return NewOrderService(inventory, payments)
}
