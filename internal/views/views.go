// Package views defines the dashboard screens as reconciler policies: which
// snapshot feeds each screen, how new records are ordered, and which order
// states a screen admits, ignores or evicts.
package views

import (
	"strings"

	"ownerdash/internal/model"
	"ownerdash/internal/reconcile"
)

// View names.
const (
	NameActive       = "active"
	NameDelivered    = "delivered"
	NameCancelled    = "cancelled"
	NameTransactions = "transactions"
	NameIncoming     = "incoming"
	NameMenu         = "menu"
)

// Snapshot endpoints on the backend.
const (
	EndpointDashboard    = "/api/orders/dashboard"
	EndpointTransactions = "/api/orders/transactions"
	EndpointOrders       = "/api/orders"
	EndpointMenu         = "/api/menu"
)

// Definition describes one screen.
type Definition[T reconcile.Record] struct {
	Name      string
	Endpoint  string
	Ordering  reconcile.Ordering
	Partition reconcile.Partition[T]
	// Live views subscribe to the update feed; the others only refresh.
	Live bool
}

// Active is the live dashboard: everything still in progress.
func Active() Definition[model.Order] {
	return Definition[model.Order]{
		Name:     NameActive,
		Endpoint: EndpointDashboard,
		Ordering: reconcile.NewestFirst,
		Live:     true,
		Partition: func(o model.Order) reconcile.Policy {
			switch {
			case o.Is(model.StatusDelivered), o.Is(model.StatusCancelled):
				return reconcile.TerminalRemove
			case o.PaymentFailed():
				return reconcile.Exclude
			default:
				return reconcile.Include
			}
		},
	}
}

// Delivered is the history tab of completed deliveries with a valid payment.
func Delivered() Definition[model.Order] {
	return Definition[model.Order]{
		Name:     NameDelivered,
		Endpoint: EndpointDashboard,
		Ordering: reconcile.NewestFirst,
		Live:     true,
		Partition: func(o model.Order) reconcile.Policy {
			switch {
			case o.Is(model.StatusCancelled):
				return reconcile.TerminalRemove
			case o.Is(model.StatusDelivered) && !o.PaymentFailed() && o.PaymentStatus != "":
				return reconcile.Include
			default:
				return reconcile.Exclude
			}
		},
	}
}

// Cancelled is the history tab of cancelled orders.
func Cancelled() Definition[model.Order] {
	return Definition[model.Order]{
		Name:     NameCancelled,
		Endpoint: EndpointDashboard,
		Ordering: reconcile.NewestFirst,
		Live:     true,
		Partition: reconcile.ByStatus[model.Order](map[string]reconcile.Policy{
			model.StatusCancelled: reconcile.Include,
			model.StatusDelivered: reconcile.TerminalRemove,
		}, reconcile.Exclude),
	}
}

// Transactions is the payments screen: every order that may still be paid.
func Transactions() Definition[model.Order] {
	return Definition[model.Order]{
		Name:     NameTransactions,
		Endpoint: EndpointTransactions,
		Ordering: reconcile.FetchOrder,
		Live:     true,
		Partition: func(o model.Order) reconcile.Policy {
			switch {
			case o.Is(model.StatusCancelled),
				strings.EqualFold(strings.TrimSpace(o.PaymentStatus), model.PaymentFailedAlt):
				return reconcile.TerminalRemove
			case strings.TrimSpace(o.PaymentMode) == "":
				return reconcile.Exclude
			default:
				return reconcile.Include
			}
		},
	}
}

// Incoming is the raw order feed in arrival order.
func Incoming() Definition[model.Order] {
	return Definition[model.Order]{
		Name:      NameIncoming,
		Endpoint:  EndpointOrders,
		Ordering:  reconcile.FetchOrder,
		Partition: reconcile.IncludeAll[model.Order](),
		Live:      true,
	}
}

// Menu is the catalog. Menu edits are not broadcast, so it only refreshes.
func Menu() Definition[model.MenuItem] {
	return Definition[model.MenuItem]{
		Name:      NameMenu,
		Endpoint:  EndpointMenu,
		Ordering:  reconcile.FetchOrder,
		Partition: reconcile.IncludeAll[model.MenuItem](),
	}
}

// OrderViews returns every order screen.
func OrderViews() []Definition[model.Order] {
	return []Definition[model.Order]{Active(), Delivered(), Cancelled(), Transactions(), Incoming()}
}
