package enums

// WebhookProvider names the sender of an inbound webhook.
type WebhookProvider string

const (
	WebhookProviderRazorpay WebhookProvider = "razorpay"
	WebhookProviderStripe   WebhookProvider = "stripe"
)
