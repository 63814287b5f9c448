package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/componentry-backend/pkg/config"
)

func TestNeedsNormalizedDropsBlankAndDuplicates(t *testing.T) {
	n := Needs{
		Topics:        []string{" domain ", "domain", ""},
		Subscriptions: []string{"", "notifications"},
	}.normalized()

	assert.Equal(t, []string{"domain"}, n.Topics)
	assert.Equal(t, []string{"notifications"}, n.Subscriptions)
}

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "proj"}

	assert.Equal(t, "projects/proj/topics/domain", c.topicResourceName("domain"))
	assert.Equal(t, "projects/proj/subscriptions/x", c.subscriptionResourceName(" x "))
	assert.Equal(t, "projects/other/subscriptions/x", c.subscriptionResourceName("projects/other/subscriptions/x"))
	assert.Equal(t, "projects/proj/topics/projects/other/subscriptions/x", c.topicResourceName("projects/other/subscriptions/x"))
	assert.Empty(t, (&Client{}).subscriptionResourceName("x"))
}

func TestNewClientValidatesInputs(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil, Needs{Topics: []string{"t"}})
	assert.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil, Needs{Topics: []string{" "}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one")
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t"))
	assert.Nil(t, c.Subscription("s"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
