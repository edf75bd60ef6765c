package mqtt

import (
	"context"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

func validatePublish(topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	return nil
}

// PublishAsync sends payload and returns immediately. The returned Ack
// resolves when the broker acknowledges the message (QoS 1/2) or the send
// completes (QoS 0). Failures, including a disconnected client, surface
// through the Ack rather than a return value.
func (c *Client) PublishAsync(topic string, payload []byte, qos byte) *Ack {
	if err := validatePublish(topic, payload, qos); err != nil {
		return ResolvedAck(err)
	}
	if !c.IsConnected() {
		return ResolvedAck(fmt.Errorf("%w: %w", ErrPublishFailed, ErrNotConnected))
	}
	return c.session.publish(topic, qos, false, payload)
}

// Publish sends payload and waits for the broker acknowledgement.
//
// Example:
//
//	err := client.Publish(ctx, topics.ShadowGet(), []byte(`{}`), 1, false)
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublish(topic, payload, qos); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	if err := c.session.publish(topic, qos, retained, payload).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return err
	}
	return nil
}
