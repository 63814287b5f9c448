// Package writer streams revenue rows into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/componentry-backend/internal/analytics/types"
)

type Config struct {
	RevenueTable string
	RetryPolicy  RetryPolicy
}

// RetryPolicy bounds retries of transient insert failures. Backoff doubles
// from InitialBackoff up to MaximumBackoff.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(2*time.Second, p.InitialBackoff)
	}
	return p
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter inserts each row before returning, so the caller can ack the
// source message only once the row is stored. Safe for concurrent use.
type BigQueryWriter struct {
	client tableInserter
	table  string
	retry  RetryPolicy
	sleep  func(context.Context, time.Duration) error
}

func New(client tableInserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.RevenueTable)
	if table == "" {
		return nil, errors.New("revenue table is required")
	}
	return &BigQueryWriter{
		client: client,
		table:  table,
		retry:  cfg.RetryPolicy.withDefaults(),
		sleep:  sleepCtx,
	}, nil
}

func (w *BigQueryWriter) InsertRevenue(ctx context.Context, rows ...types.RevenueEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	savers := make([]any, len(rows))
	for i, row := range rows {
		if row.EventID == "" {
			return fmt.Errorf("revenue row %d missing event id", i)
		}
		savers[i] = row
	}

	backoff := w.retry.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := w.client.InsertRows(ctx, w.table, savers)
		if err == nil {
			return nil
		}
		if attempt >= w.retry.MaxAttempts || !Retryable(err) {
			return fmt.Errorf("insert %d rows into %s after %d attempt(s): %w", len(rows), w.table, attempt, err)
		}
		if err := w.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = min(backoff*2, w.retry.MaximumBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retryable reports whether every underlying failure is transient. Row level
// errors are unwrapped so one bad row makes the whole batch permanent.
func Retryable(err error) bool {
	leaves := flatten(err)
	if len(leaves) == 0 {
		return false
	}
	for _, leaf := range leaves {
		if !transient(leaf) {
			return false
		}
	}
	return true
}

func flatten(err error) []error {
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		var out []error
		for _, inner := range multi {
			out = append(out, flatten(inner)...)
		}
		return out
	}
	var puts cbigquery.PutMultiError
	if errors.As(err, &puts) {
		var out []error
		for _, rowErr := range puts {
			out = append(out, flatten(rowErr.Errors)...)
		}
		return out
	}
	if err == nil {
		return nil
	}
	return []error{err}
}

func transient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	var bqErr *cbigquery.Error
	if errors.As(err, &bqErr) {
		return bqErr.Reason == "backendError" || bqErr.Reason == "rateLimitExceeded" || bqErr.Reason == "timeout"
	}
	return false
}

// EncodeJSON renders a payload for a JSON column. Nil and empty input yield a
// NULL cell; raw JSON passes through untouched.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
