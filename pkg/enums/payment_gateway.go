package enums

import "fmt"

// PaymentGateway names the processor that handled a transaction.
type PaymentGateway string

const (
	GatewayRazorpay PaymentGateway = "razorpay"
	GatewayStripe   PaymentGateway = "stripe"
)

func (g PaymentGateway) IsValid() bool {
	return g == GatewayRazorpay || g == GatewayStripe
}

// ParsePaymentGateway converts raw input into a PaymentGateway.
func ParsePaymentGateway(value string) (PaymentGateway, error) {
	g := PaymentGateway(value)
	if !g.IsValid() {
		return "", fmt.Errorf("invalid payment gateway %q", value)
	}
	return g, nil
}

// PaymentPurpose distinguishes subscription payments from marketplace checkouts.
type PaymentPurpose string

const (
	PaymentPurposeSubscription PaymentPurpose = "subscription"
	PaymentPurposeMarketplace  PaymentPurpose = "marketplace"
)

func (p PaymentPurpose) IsValid() bool {
	return p == PaymentPurposeSubscription || p == PaymentPurposeMarketplace
}
