package main

import (
	"context"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/componentry-backend/pkg/outbox/registry"
)

type publisherSource interface {
	Publisher(name string) *gcppubsub.Publisher
}

// gcpTopics publishes through the shared pubsub client's cached publishers.
type gcpTopics struct {
	client publisherSource
}

func (g gcpTopics) PublishSync(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error) {
	if g.client == nil {
		return "", errors.New("pubsub client not configured")
	}
	pub := g.client.Publisher(topic)
	if pub == nil {
		return "", registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	return pub.Publish(ctx, msg).Get(ctx)
}
