// Package payment holds the order-status vocabulary shared with the payment gateway.
package payment

import "strings"

// Status is the lifecycle of an order on our side of the gateway.
type Status string

// Status constants
const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransitionTo allows only forward moves: pending -> success|failed.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.Terminal()
}

// Gateway-side order statuses that mean "not settled yet". Anything else reported
// with success=false is final. The gateway is not consistent about casing, so
// comparisons go through Normalize.
var inFlight = map[string]bool{
	"pending": true,
	"active":  true,
}

// Normalize lowercases and trims a gateway order status.
func Normalize(gatewayStatus string) string {
	return strings.ToLower(strings.TrimSpace(gatewayStatus))
}

// InFlight reports whether a gateway order status is still awaiting settlement.
func InFlight(gatewayStatus string) bool {
	return inFlight[Normalize(gatewayStatus)]
}

// FromGateway maps a gateway order status onto our Status.
func FromGateway(gatewayStatus string) Status {
	switch s := Normalize(gatewayStatus); {
	case inFlight[s]:
		return StatusPending
	case s == "paid" || s == "success" || s == "captured" || s == "completed":
		return StatusSuccess
	default:
		return StatusFailed
	}
}
