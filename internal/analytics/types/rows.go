package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// RevenueEventRow mirrors the revenue_events BigQuery schema. Amounts are in
// minor units; refunds are written as negative amounts.
type RevenueEventRow struct {
	EventID           string             `bigquery:"event_id"`
	EventType         string             `bigquery:"event_type"`
	OccurredAt        time.Time          `bigquery:"occurred_at"`
	UserID            string             `bigquery:"user_id"`
	Source            string             `bigquery:"source"`
	Plan              *string            `bigquery:"plan"`
	ItemType          *string            `bigquery:"item_type"`
	ItemID            *string            `bigquery:"item_id"`
	DeveloperID       *string            `bigquery:"developer_id"`
	TransactionID     *string            `bigquery:"transaction_id"`
	Gateway           *string            `bigquery:"gateway"`
	Currency          string             `bigquery:"currency"`
	Amount            int64              `bigquery:"amount"`
	DeveloperEarnings int64              `bigquery:"developer_earnings"`
	PlatformFee       int64              `bigquery:"platform_fee"`
	Payload           cbigquery.NullJSON `bigquery:"payload"`
}

// RevenueEventsPartitionField is the day-partitioning column of revenue_events.
const RevenueEventsPartitionField = "occurred_at"

// RevenueEventSchema is the table layout RevenueEventRow writes into.
func RevenueEventSchema() cbigquery.Schema {
	nullable := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t}
	}
	required := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t, Required: true}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required("occurred_at", cbigquery.TimestampFieldType),
		required("user_id", cbigquery.StringFieldType),
		required("source", cbigquery.StringFieldType),
		nullable("plan", cbigquery.StringFieldType),
		nullable("item_type", cbigquery.StringFieldType),
		nullable("item_id", cbigquery.StringFieldType),
		nullable("developer_id", cbigquery.StringFieldType),
		nullable("transaction_id", cbigquery.StringFieldType),
		nullable("gateway", cbigquery.StringFieldType),
		required("currency", cbigquery.StringFieldType),
		required("amount", cbigquery.IntegerFieldType),
		required("developer_earnings", cbigquery.IntegerFieldType),
		required("platform_fee", cbigquery.IntegerFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}

// Save implements bigquery.ValueSaver. The event id doubles as the streaming
// insert id so BigQuery drops redelivered rows on a best-effort basis.
func (r RevenueEventRow) Save() (map[string]cbigquery.Value, string, error) {
	row := map[string]cbigquery.Value{
		"event_id":           r.EventID,
		"event_type":         r.EventType,
		"occurred_at":        r.OccurredAt.UTC(),
		"user_id":            r.UserID,
		"source":             r.Source,
		"plan":               optional(r.Plan),
		"item_type":          optional(r.ItemType),
		"item_id":            optional(r.ItemID),
		"developer_id":       optional(r.DeveloperID),
		"transaction_id":     optional(r.TransactionID),
		"gateway":            optional(r.Gateway),
		"currency":           r.Currency,
		"amount":             r.Amount,
		"developer_earnings": r.DeveloperEarnings,
		"platform_fee":       r.PlatformFee,
		"payload":            nil,
	}
	if r.Payload.Valid {
		row["payload"] = r.Payload.JSONVal
	}
	return row, r.EventID, nil
}

func optional(v *string) cbigquery.Value {
	if v == nil {
		return nil
	}
	return *v
}
