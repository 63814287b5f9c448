package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/componentry-backend/pkg/enums"
	"github.com/angelmondragon/componentry-backend/pkg/outbox"
	"github.com/angelmondragon/componentry-backend/pkg/outbox/payloads"
)

// ErrNoDecoder is returned for an event type and version nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

// DecodeFunc turns an envelope's data into a typed payload.
type DecodeFunc func(data json.RawMessage) (any, error)

type schema struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps (event type, version) to a payload decoder. It is
// filled once at startup and read concurrently afterwards.
type DecoderRegistry struct {
	decoders map[schema]DecodeFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[schema]DecodeFunc{}}
}

// NewDomainDecoders knows the v1 payload of every domain event.
func NewDomainDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	As[payloads.SubscriptionActivatedEvent](reg, enums.EventSubscriptionActivated, 1)
	As[payloads.SubscriptionExpiredEvent](reg, enums.EventSubscriptionExpired, 1)
	As[payloads.PurchaseCompletedEvent](reg, enums.EventPurchaseCompleted, 1)
	As[payloads.PurchaseRefundedEvent](reg, enums.EventPurchaseRefunded, 1)
	As[payloads.PaymentFailedEvent](reg, enums.EventPaymentFailed, 1)
	return reg
}

// As registers a decoder that unmarshals into *T.
func As[T any](reg *DecoderRegistry, eventType enums.OutboxEventType, version int) {
	reg.Register(eventType, version, func(data json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("%s@v%d: %w", eventType, version, err)
		}
		return out, nil
	})
}

// Register replaces any decoder already set for the pair.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, fn DecodeFunc) {
	r.decoders[schema{eventType, version}] = fn
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	fn, ok := r.decoders[schema{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	return fn(data)
}

// DecodeMessage parses a published message body. The envelope is returned
// whenever it parsed, even if the payload did not.
func (r *DecoderRegistry) DecodeMessage(body []byte) (*outbox.PayloadEnvelope, any, error) {
	envelope, err := outbox.DecodeEnvelope(body)
	if err != nil {
		return nil, nil, err
	}
	eventType, err := enums.ParseOutboxEventType(envelope.EventType)
	if err != nil {
		return &envelope, nil, err
	}
	payload, err := r.Decode(eventType, envelope.Version, envelope.Data)
	return &envelope, payload, err
}
