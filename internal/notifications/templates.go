package notifications

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/componentry-backend/pkg/email"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/payloads"
)

const (
	CategoryExpiryReminder  = "subscription-expiry-reminder"
	CategoryDowngrade       = "subscription-downgrade"
	CategorySubscriptionPay = "subscription-receipt"
	CategoryPurchaseReceipt = "purchase-receipt"
)

// ExpiryReminder warns a paying user that the plan ends soon.
func ExpiryReminder(to, name string, plan enums.PlanName, endDate, now time.Time) email.Message {
	days := int(endDate.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	when := "today"
	switch {
	case days == 1:
		when = "in 1 day"
	case days > 1:
		when = fmt.Sprintf("in %d days", days)
	}
	text := fmt.Sprintf("%s,\n\nYour %s plan ends %s (%s). Renew before then to keep your API keys and token allowance.\n",
		greeting(name), plan, when, endDate.UTC().Format("2 Jan 2006"))
	return email.Message{
		To:       to,
		ToName:   name,
		Subject:  fmt.Sprintf("Your %s plan expires %s", plan, when),
		Text:     text,
		HTML:     paragraphs(text),
		Category: CategoryExpiryReminder,
	}
}

// DowngradeNotice tells a user the paid plan lapsed and the account is on free.
func DowngradeNotice(to, name string, previous enums.PlanName) email.Message {
	text := fmt.Sprintf("%s,\n\nYour %s plan has expired and your account is now on the free plan. Pool API keys were released. You can upgrade again at any time.\n",
		greeting(name), previous)
	return email.Message{
		To:       to,
		ToName:   name,
		Subject:  fmt.Sprintf("Your %s plan has expired", previous),
		Text:     text,
		HTML:     paragraphs(text),
		Category: CategoryDowngrade,
	}
}

// SubscriptionReceipt confirms a verified plan payment.
func SubscriptionReceipt(evt payloads.SubscriptionActivatedEvent) email.Message {
	text := fmt.Sprintf("%s,\n\nThanks for your payment of %s %s. Your %s plan is active until %s.\nReference: %s\n",
		greeting(evt.Name), evt.Currency, amount(evt.Amount), evt.Plan, evt.EndDate.UTC().Format("2 Jan 2006"), evt.TransactionID)
	return email.Message{
		To:       evt.Email,
		ToName:   evt.Name,
		Subject:  fmt.Sprintf("Receipt: %s plan", evt.Plan),
		Text:     text,
		HTML:     paragraphs(text),
		Category: CategorySubscriptionPay,
	}
}

// PurchaseReceipt confirms one marketplace item purchase.
func PurchaseReceipt(evt payloads.PurchaseCompletedEvent) email.Message {
	text := fmt.Sprintf("Hi,\n\nYou now own the %s \"%s\" for %s %s. It is available in your purchases.\nPurchase: %s\n",
		evt.ItemType, evt.ItemTitle, evt.Currency, amount(evt.PaidAmount), evt.PurchaseID)
	return email.Message{
		To:       evt.BuyerEmail,
		Subject:  fmt.Sprintf("Receipt: %s", evt.ItemTitle),
		Text:     text,
		HTML:     paragraphs(text),
		Category: CategoryPurchaseReceipt,
	}
}

func amount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func greeting(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Hi"
	}
	return "Hi " + strings.TrimSpace(name)
}

func paragraphs(text string) string {
	var b strings.Builder
	for _, block := range strings.Split(strings.TrimSpace(text), "\n\n") {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(block), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}
