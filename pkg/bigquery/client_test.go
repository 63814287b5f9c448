package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/componentry-backend/pkg/config"
)

func TestNormalizeTables(t *testing.T) {
	specs, err := normalizeTables([]TableSpec{{Name: " revenue_events "}})
	require.NoError(t, err)
	assert.Equal(t, "revenue_events", specs[0].Name)

	_, err = normalizeTables(nil)
	assert.ErrorIs(t, err, errTableNameRequired)

	_, err = normalizeTables([]TableSpec{{Name: "  "}})
	assert.ErrorIs(t, err, errTableNameRequired)
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	_, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "d"}, nil, TableSpec{Name: "t"})
	assert.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{}, nil, TableSpec{Name: "t"})
	assert.ErrorIs(t, err, errDatasetRequired)

	_, err = NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: "d"}, nil)
	assert.ErrorIs(t, err, errTableNameRequired)
}

func TestTableMetadataPartitions(t *testing.T) {
	md := tableMetadata(TableSpec{
		Name:           "revenue_events",
		Schema:         bigquery.Schema{{Name: "occurred_at", Type: bigquery.TimestampFieldType}},
		PartitionField: "occurred_at",
	})
	require.NotNil(t, md.TimePartitioning)
	assert.Equal(t, "occurred_at", md.TimePartitioning.Field)

	assert.Nil(t, tableMetadata(TableSpec{Name: "plain"}).TimePartitioning)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("wrap: %w", &googleapi.Error{Code: http.StatusNotFound})))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isNotFound(errors.New("plain")))
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	assert.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	assert.ErrorIs(t, c.InsertRows(context.Background(), "t", []any{1}), errClientNotInitialized)
	assert.NoError(t, c.Close())
}
