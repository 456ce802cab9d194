package node

import (
	"context"
	"log/slog"

	"github.com/absmach/hyperfold/pkg/mqtt"
	"github.com/absmach/hyperfold/pkg/wire"
)

var _ Transport = (*mqttTransport)(nil)

type mqttTransport struct {
	pubsub    mqtt.PubSub
	domainID  string
	channelID string
	logger    *slog.Logger
}

// NewMQTTTransport carries envelopes as CBOR payloads on per-address inbox
// topics of one MQTT channel.
func NewMQTTTransport(pubsub mqtt.PubSub, domainID, channelID string, logger *slog.Logger) Transport {
	return &mqttTransport{
		pubsub:    pubsub,
		domainID:  domainID,
		channelID: channelID,
		logger:    logger,
	}
}

func (t *mqttTransport) Send(ctx context.Context, address string, env wire.Envelope) error {
	payload, err := wire.Encode(env)
	if err != nil {
		return err
	}

	return t.pubsub.Publish(ctx, mqtt.InboxTopic(t.domainID, t.channelID, address), payload)
}

// Listen subscribes to the inbox of address. Payloads that fail to decode are
// dropped.
func (t *mqttTransport) Listen(ctx context.Context, address string, handler Handler) error {
	topic := mqtt.InboxTopic(t.domainID, t.channelID, address)

	return t.pubsub.Subscribe(ctx, topic, func(topic string, payload []byte) error {
		env, err := wire.Decode(payload)
		if err != nil {
			t.logger.Warn("Dropped malformed envelope", slog.String("topic", topic), slog.Any("error", err))

			return nil
		}

		return handler(ctx, env)
	})
}
