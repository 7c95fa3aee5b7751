package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type topicPublisher struct {
	topic *gcppubsub.Publisher
}

// newTopicPublisher returns a nil interface when the topic is unknown.
func newTopicPublisher(topic *gcppubsub.Publisher) publisher {
	if topic == nil {
		return nil
	}
	return topicPublisher{topic: topic}
}

func (p topicPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.topic.Publish(ctx, msg)
}
