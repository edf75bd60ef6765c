package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectResult is what the broker reported in its CONNACK.
type ConnectResult struct {
	ReturnCode     byte
	SessionPresent bool
}

// session is the transport underneath Client. pahoSession is the real
// implementation; tests drive Client through a fake.
type session interface {
	connect() (ConnectResult, error)
	subscribe(topic string, qos byte, handler MessageHandler) (granted byte, err error)
	publish(topic string, qos byte, retained bool, payload []byte) *Ack
	isConnected() bool
	disconnect(quiesceMS uint)
}

type pahoSession struct {
	client pahomqtt.Client
}

func (s *pahoSession) connect() (ConnectResult, error) {
	token := s.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return ConnectResult{}, fmt.Errorf("%w: no CONNACK after %v", ErrTimeout, defaultConnectTimeout)
	}

	var res ConnectResult
	if ct, ok := token.(*pahomqtt.ConnectToken); ok {
		res.ReturnCode = ct.ReturnCode()
		res.SessionPresent = ct.SessionPresent()
	}
	return res, token.Error()
}

func (s *pahoSession) subscribe(topic string, qos byte, handler MessageHandler) (byte, error) {
	token := s.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload()) //nolint:errcheck // handler is wrapped and logs its own errors
	})
	if !token.WaitTimeout(defaultPublishTimeout) {
		return SubackFailure, fmt.Errorf("%w: no SUBACK after %v", ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return SubackFailure, err
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if granted, found := st.Result()[topic]; found {
			return granted, nil
		}
	}
	return qos, nil
}

func (s *pahoSession) publish(topic string, qos byte, retained bool, payload []byte) *Ack {
	token := s.client.Publish(topic, qos, retained, payload)
	ack := NewAck()
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			ack.Resolve(fmt.Errorf("%w: %w", ErrPublishFailed, err))
			return
		}
		ack.Resolve(nil)
	}()
	return ack
}

func (s *pahoSession) isConnected() bool {
	return s.client.IsConnected()
}

func (s *pahoSession) disconnect(quiesceMS uint) {
	s.client.Disconnect(quiesceMS)
}
