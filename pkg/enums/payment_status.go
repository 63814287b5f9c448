package enums

import (
	"fmt"
	"slices"
)

// PaymentStatus is shared by payment transactions and item purchases.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// A failed payment can still complete: gateways report late captures after
// the client already gave up.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusFailed:    {PaymentStatusCompleted},
	PaymentStatusCompleted: {PaymentStatusRefunded},
	PaymentStatusRefunded:  {},
	PaymentStatusCancelled: {},
}

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) IsValid() bool {
	_, ok := paymentTransitions[p]
	return ok
}

func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return slices.Contains(paymentTransitions[p], next)
}

// Sources lists the statuses that may move to p, in a stable order. Repositories
// use it as the guard of conditional updates.
func (p PaymentStatus) Sources() []PaymentStatus {
	var out []PaymentStatus
	for from, targets := range paymentTransitions {
		if slices.Contains(targets, p) {
			out = append(out, from)
		}
	}
	slices.Sort(out)
	return out
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	status := PaymentStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment status %q", value)
	}
	return status, nil
}
