package stream

import (
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/ts-dispatch/internal/metrics"
)

// NATSSource consumes alert events straight off the backend bus instead of
// the operator websocket. Used when the console runs co-located with the
// control plane (the backend publishes the same envelopes it pushes over
// websocket). Reconnection is delegated to the NATS client; status changes
// are mapped onto the same Callbacks contract.
type NATSSource struct {
	url     string
	subject string
	cb      Callbacks

	conn *nats.Conn
	sub  *nats.Subscription
}

func NewNATSSource(url, subject string, cb Callbacks) *NATSSource {
	return &NATSSource{url: url, subject: subject, cb: cb}
}

func (s *NATSSource) Connect() error {
	s.emit(StatusConnecting)

	conn, err := nats.Connect(s.url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("[Stream/NATS] Disconnected: %v", err)
			s.emit(StatusDisconnected)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("[Stream/NATS] Reconnected")
			metrics.StreamConnectsTotal.Inc()
			s.emit(StatusConnected)
		}),
	)
	if err != nil {
		s.emit(StatusError)
		return fmt.Errorf("nats connect: %w", err)
	}
	s.conn = conn

	sub, err := conn.Subscribe(s.subject, func(msg *nats.Msg) {
		ev, err := DecodeEnvelope(msg.Data)
		if err != nil {
			log.Printf("[Stream/NATS] Dropping message: %v", err)
			metrics.StreamDroppedTotal.Inc()
			return
		}
		metrics.AlertEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
		if s.cb.OnEvent != nil {
			s.cb.OnEvent(ev)
		}
	})
	if err != nil {
		conn.Close()
		s.emit(StatusError)
		return fmt.Errorf("nats subscribe %s: %w", s.subject, err)
	}
	s.sub = sub

	metrics.StreamConnectsTotal.Inc()
	s.emit(StatusConnected)
	return nil
}

func (s *NATSSource) Close() error {
	if s.sub != nil {
		s.sub.Unsubscribe()
		s.sub = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.emit(StatusDisconnected)
	return nil
}

func (s *NATSSource) emit(st Status) {
	if s.cb.OnStatus != nil {
		s.cb.OnStatus(st)
	}
}
