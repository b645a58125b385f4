package pubsub

import (
	"context"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sender publishes with message ordering enabled, keeping one publisher per
// topic for the life of the process.
type Sender struct {
	client *Client

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func NewSender(client *Client) *Sender {
	return &Sender{client: client, publishers: make(map[string]*pubsub.Publisher)}
}

func (s *Sender) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Send blocks until the broker acknowledges msg. A failed ordered publish
// pauses its key inside the client library, so the key is resumed before
// returning to let the next attempt through.
func (s *Sender) Send(ctx context.Context, topic string, msg *pubsub.Message) (string, error) {
	p := s.publisher(topic)
	if p == nil {
		return "", status.Errorf(codes.NotFound, "no publisher for topic %q", topic)
	}
	id, err := p.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		p.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

// Stop flushes and stops every publisher created so far.
func (s *Sender) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, p := range s.publishers {
		p.Stop()
		delete(s.publishers, topic)
	}
}

func (s *Sender) publisher(topic string) *pubsub.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.publishers[topic]; ok {
		return p
	}
	p := s.client.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	s.publishers[topic] = p
	return p
}
