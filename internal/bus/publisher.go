package bus

import (
	"context"
	"fmt"

	"github.com/collectivat/mic2etherpad/internal/dictation"
	"github.com/collectivat/mic2etherpad/internal/protocol"
)

// Publisher forwards dictation events to the bus.
type Publisher struct {
	client    *Client
	sessionID string
}

func NewPublisher(client *Client, sessionID string) *Publisher {
	return &Publisher{client: client, sessionID: sessionID}
}

func (p *Publisher) Observe(_ context.Context, ev dictation.Event) error {
	subject, data, err := protocol.Encode(p.sessionID, ev)
	if err != nil {
		return err
	}
	if err := p.client.Conn().Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
