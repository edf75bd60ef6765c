// Package mqtt provides the broker connection used by the shadow agent.
//
// It wraps paho.mqtt.golang and owns the connection lifecycle:
//
//	Disconnected -> Connecting -> Connected
//	Connected -> Interrupted -> (resume) -> Connected
//	                         -> (resume, no session) -> Resubscribing -> Connected | Failed
//	Connecting -> Failed
//
// The session is persistent (clean_session=false). After each resume the
// CONNACK's session-present flag decides whether tracked subscriptions are
// restored: when present the broker already holds them; when absent each is
// resubscribed individually and every SUBACK is checked. A refused
// resubscription is fatal for the Client and is delivered on Fatal.
//
// Publishing is asynchronous: PublishAsync returns an *Ack future that the
// caller observes without blocking the transport.
//
// Usage:
//
//	client, err := mqtt.New(cfg.MQTT, topics.Status())
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.ShadowDelta(), 1, func(topic string, payload []byte) error {
//	    return reconciler.Enqueue(payload)
//	})
package mqtt
