package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes run events to a NATS core subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

type NATSConfig struct {
	URL     string
	Subject string
}

func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("applier-eventbus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "applier.events.run"
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

func (s *NATSSink) Publish(ctx context.Context, evt Event) error {
	if !evt.MinimalValidate() {
		return fmt.Errorf("invalid event: missing required fields")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.nc.Publish(s.subject, data)
}

func (s *NATSSink) Subscribe(ctx context.Context, handler func(Event)) (*nats.Subscription, error) {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err == nil {
			handler(evt)
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}

func (s *NATSSink) Close() {
	s.nc.Close()
}
