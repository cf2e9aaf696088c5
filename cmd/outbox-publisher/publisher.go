package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

// topicPublishers keeps one ordered Pub/Sub publisher per topic for the
// lifetime of the process.
type topicPublishers struct {
	mu     sync.Mutex
	open   func(topic string) *gcppubsub.Publisher
	byName map[string]*gcpPublisher
}

func newTopicPublishers(open func(topic string) *gcppubsub.Publisher) *topicPublishers {
	return &topicPublishers{open: open, byName: map[string]*gcpPublisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.byName[topic]; ok {
		return p
	}
	raw := t.open(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	p := &gcpPublisher{Publisher: raw}
	t.byName[topic] = p
	return p
}

// stop flushes every publisher that was opened.
func (t *topicPublishers) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, p := range t.byName {
		p.Stop()
		delete(t.byName, name)
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{
		PublishResult: p.Publisher.Publish(ctx, msg),
		publisher:     p.Publisher,
		orderingKey:   msg.OrderingKey,
	}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
	publisher   *gcppubsub.Publisher
	orderingKey string
}

// Get waits for the server ack. A failed ordered publish pauses its key, so
// the key is resumed to let the retry go out on the next batch.
func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.PublishResult.Get(ctx)
	if err != nil && r.orderingKey != "" {
		r.publisher.ResumePublish(r.orderingKey)
	}
	return id, err
}
